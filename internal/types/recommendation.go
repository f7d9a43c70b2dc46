package types

import (
	"fmt"
	"time"
)

// RecommendationStatus represents the workflow state of a recommendation.
type RecommendationStatus string

const (
	RecProposed RecommendationStatus = "proposed"
	RecApproved RecommendationStatus = "approved"
	RecRejected RecommendationStatus = "rejected"
	RecEnhanced RecommendationStatus = "enhanced"
	RecApplied  RecommendationStatus = "applied"
)

// IsValid checks if the recommendation status value is valid
func (s RecommendationStatus) IsValid() bool {
	switch s {
	case RecProposed, RecApproved, RecRejected, RecEnhanced, RecApplied:
		return true
	}
	return false
}

// IsTerminal reports whether the status is terminal. Any transition attempt
// out of a terminal status is a TerminalStateViolation.
func (s RecommendationStatus) IsTerminal() bool {
	return s == RecRejected || s == RecApplied
}

// ValidTransitions defines the valid transitions of the recommendation
// workflow state machine. Transitions are monotonic: no path revisits
// proposed, and rejected/applied are terminal.
//
// State Machine Diagram:
//
//	proposed → approved → enhanced → applied
//	    ↓
//	rejected
func (s RecommendationStatus) ValidTransitions() []RecommendationStatus {
	switch s {
	case RecProposed:
		return []RecommendationStatus{RecApproved, RecRejected}
	case RecApproved:
		return []RecommendationStatus{RecEnhanced}
	case RecEnhanced:
		return []RecommendationStatus{RecApplied}
	default:
		return []RecommendationStatus{} // Terminal states
	}
}

// CanTransitionTo checks if a transition from this status to the target is valid
func (s RecommendationStatus) CanTransitionTo(target RecommendationStatus) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// Decision is an explicit approve/reject input to the workflow.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// IsValid checks if the decision value is valid
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Status returns the recommendation status a decision resolves to.
func (d Decision) Status() RecommendationStatus {
	if d == DecisionApprove {
		return RecApproved
	}
	return RecRejected
}

// Recommendation is a proposed content change derived from one or more
// findings. It back-references its validation result and is carried through
// the approval workflow. Multiple recommendations may reference the same
// validation result; ordering among them is creation order.
type Recommendation struct {
	ID           string               `json:"id"`
	ValidationID string               `json:"validation_id"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	Status       RecommendationStatus `json:"status"`
	CreatedAt    time.Time            `json:"created_at"`
	DecidedAt    *time.Time           `json:"decided_at,omitempty"`
	DecidedBy    string               `json:"decided_by,omitempty"`
}

// Validate checks if the recommendation has valid field values
func (r *Recommendation) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("recommendation id is required")
	}
	if r.ValidationID == "" {
		return fmt.Errorf("validation_id is required")
	}
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(r.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(r.Title))
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	return nil
}

// EnhancementRecord is the output of applying the enhancement step to an
// approved recommendation. Preview records are read-only projections and may
// be overwritten by later previews; a committed (non-preview) record
// accompanies the approved → enhanced transition.
type EnhancementRecord struct {
	ID               int64      `json:"id"`
	RecommendationID string     `json:"recommendation_id"`
	Preview          bool       `json:"preview"`
	EnhancedContent  string     `json:"enhanced_content"`
	CreatedAt        time.Time  `json:"created_at"`
	AppliedAt        *time.Time `json:"applied_at,omitempty"`
}

// Validate checks if the enhancement record has valid field values
func (e *EnhancementRecord) Validate() error {
	if e.RecommendationID == "" {
		return fmt.Errorf("recommendation_id is required")
	}
	if e.EnhancedContent == "" {
		return fmt.Errorf("enhanced_content is required")
	}
	return nil
}

// Statistics provides aggregate metrics over the validation store.
type Statistics struct {
	TotalArtifacts     int     `json:"total_artifacts"`
	TotalValidations   int     `json:"total_validations"`
	PassedValidations  int     `json:"passed_validations"`
	FailedValidations  int     `json:"failed_validations"`
	ErroredValidations int     `json:"errored_validations"`
	TotalFindings      int     `json:"total_findings"`
	Recommendations    int     `json:"recommendations"`
	PendingDecisions   int     `json:"pending_decisions"`
	PassRate           float64 `json:"pass_rate"`
}

// RecommendationFilter is used to filter recommendation queries
type RecommendationFilter struct {
	Status       *RecommendationStatus
	ValidationID *string
	Limit        int
}
