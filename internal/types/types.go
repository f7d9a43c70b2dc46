package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Artifact is one identified piece of content submitted for validation.
// Artifacts are immutable once submitted: the ID is derived from the content
// hash, so a new content version yields a new artifact identity.
type Artifact struct {
	ID        string       `json:"id"`
	Kind      ArtifactKind `json:"kind"`
	Locator   string       `json:"locator"` // file path or logical locator
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewArtifact builds an artifact with a content-addressed ID.
func NewArtifact(kind ArtifactKind, locator, content string) *Artifact {
	sum := sha256.Sum256([]byte(content))
	return &Artifact{
		ID:        fmt.Sprintf("%s-%s", kind, hex.EncodeToString(sum[:])[:12]),
		Kind:      kind,
		Locator:   locator,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Validate checks if the artifact has valid field values
func (a *Artifact) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("artifact id is required")
	}
	if !a.Kind.IsValid() {
		return fmt.Errorf("invalid artifact kind: %s", a.Kind)
	}
	if a.Locator == "" {
		return fmt.Errorf("locator is required")
	}
	return nil
}

// ArtifactKind categorizes the content an artifact carries. Validators declare
// which kinds they apply to; the router matches on this value.
type ArtifactKind string

const (
	KindYAML     ArtifactKind = "yaml"
	KindMarkdown ArtifactKind = "markdown"
	KindCode     ArtifactKind = "code"
	KindHTML     ArtifactKind = "html"
	KindJSON     ArtifactKind = "json"
	KindText     ArtifactKind = "text"
)

// IsValid checks if the artifact kind value is valid
func (k ArtifactKind) IsValid() bool {
	switch k {
	case KindYAML, KindMarkdown, KindCode, KindHTML, KindJSON, KindText:
		return true
	}
	return false
}

// DetectKind infers an artifact kind from a file locator's extension.
// Unknown extensions map to KindText.
func DetectKind(locator string) ArtifactKind {
	switch strings.ToLower(filepath.Ext(locator)) {
	case ".yaml", ".yml":
		return KindYAML
	case ".md", ".markdown":
		return KindMarkdown
	case ".go", ".py", ".js", ".ts", ".rb", ".rs", ".java", ".c", ".cc", ".cpp", ".sh":
		return KindCode
	case ".html", ".htm":
		return KindHTML
	case ".json":
		return KindJSON
	default:
		return KindText
	}
}

// Severity is the severity level of a finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Rank returns the numeric ordering of a severity for threshold comparisons.
// Higher ranks are more severe. Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	default:
		return 0
	}
}

// Finding is one observation from one validator about an artifact. Findings
// are owned exclusively by their validation result and are immutable once
// the result reaches a terminal status.
type Finding struct {
	ValidationID  string   `json:"validation_id"`
	ValidatorKind string   `json:"validator_kind"`
	Severity      Severity `json:"severity"`
	Message       string   `json:"message"`
	Location      string   `json:"location,omitempty"` // e.g. "line 12" or a URL
	Position      int      `json:"position"`           // validator invocation order index
	// Infrastructure marks findings that report a validator execution failure
	// (timeout, unreachable resolver) rather than a content judgment.
	Infrastructure bool `json:"infrastructure,omitempty"`
}

// Validate checks if the finding has valid field values
func (f *Finding) Validate() error {
	if f.ValidatorKind == "" {
		return fmt.Errorf("validator_kind is required")
	}
	if !f.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", f.Severity)
	}
	if f.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

// ValidationStatus represents the state of one validation run.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationRunning ValidationStatus = "running"
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
	ValidationError   ValidationStatus = "error"
)

// IsValid checks if the validation status value is valid
func (s ValidationStatus) IsValid() bool {
	switch s {
	case ValidationPending, ValidationRunning, ValidationPassed, ValidationFailed, ValidationError:
		return true
	}
	return false
}

// IsTerminal reports whether the status is terminal. Findings are frozen once
// the result reaches a terminal status.
func (s ValidationStatus) IsTerminal() bool {
	switch s {
	case ValidationPassed, ValidationFailed, ValidationError:
		return true
	}
	return false
}

// ValidTransitions defines the valid transitions of the validation run
// state machine.
//
// State Machine Diagram:
//
//	pending → running → passed
//	              ↓   ↘ failed
//	            error
//
// A cancelled or infrastructure-degraded run lands in error; failed is
// reserved for content-level judgments.
func (s ValidationStatus) ValidTransitions() []ValidationStatus {
	switch s {
	case ValidationPending:
		return []ValidationStatus{ValidationRunning, ValidationError}
	case ValidationRunning:
		return []ValidationStatus{ValidationPassed, ValidationFailed, ValidationError}
	default:
		return []ValidationStatus{} // Terminal states
	}
}

// CanTransitionTo checks if a transition from this status to the target is valid
func (s ValidationStatus) CanTransitionTo(target ValidationStatus) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// ValidationResult is the aggregated outcome of dispatching one artifact to
// all applicable validators. Once the status is terminal the findings are
// fixed; only derivative recommendations may back-reference the result.
type ValidationResult struct {
	ID          string           `json:"id"`
	ArtifactID  string           `json:"artifact_id"`
	Status      ValidationStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Findings    []*Finding       `json:"findings"`
}

// Validate checks if the validation result has valid field values
func (v *ValidationResult) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("validation id is required")
	}
	if v.ArtifactID == "" {
		return fmt.Errorf("artifact_id is required")
	}
	if !v.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", v.Status)
	}
	return nil
}

// FindingsBySeverity counts findings at or above the given severity,
// excluding infrastructure findings (those never represent content judgments).
func (v *ValidationResult) FindingsBySeverity(min Severity) int {
	n := 0
	for _, f := range v.Findings {
		if !f.Infrastructure && f.Severity.Rank() >= min.Rank() {
			n++
		}
	}
	return n
}
