// Package recommend derives recommendations from validation findings.
package recommend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tbcv/tbcv/internal/broadcast"
	"github.com/tbcv/tbcv/internal/storage"
	"github.com/tbcv/tbcv/internal/types"
)

// Policy decides which findings of a validation result warrant a
// recommendation and shapes the proposals.
type Policy interface {
	Derive(result *types.ValidationResult) []*types.Recommendation
}

// SeverityPolicy proposes one recommendation per content finding at or above
// a minimum severity. Infrastructure findings never produce recommendations:
// they describe the pipeline, not the content.
type SeverityPolicy struct {
	MinSeverity types.Severity
}

// DefaultPolicy recommends fixes for warnings and errors.
func DefaultPolicy() *SeverityPolicy {
	return &SeverityPolicy{MinSeverity: types.SeverityWarning}
}

func (p *SeverityPolicy) Derive(result *types.ValidationResult) []*types.Recommendation {
	var recs []*types.Recommendation
	for _, f := range result.Findings {
		if f.Infrastructure || f.Severity.Rank() < p.MinSeverity.Rank() {
			continue
		}
		title := fmt.Sprintf("Fix %s finding: %s", f.ValidatorKind, f.Message)
		if len(title) > 500 {
			title = title[:497] + "..."
		}
		desc := f.Message
		if f.Location != "" {
			desc = fmt.Sprintf("%s (at %s)", desc, f.Location)
		}
		recs = append(recs, &types.Recommendation{
			ID:           uuid.New().String(),
			ValidationID: result.ID,
			Title:        title,
			Description:  desc,
			Status:       types.RecProposed,
			CreatedAt:    time.Now(),
		})
	}
	return recs
}

// Deriver runs a policy over completed validation results and persists the
// proposals.
type Deriver struct {
	policy Policy
	store  storage.Storage
	bc     *broadcast.Broadcaster
}

// NewDeriver creates a deriver. A nil policy gets the default; the
// broadcaster may be nil.
func NewDeriver(policy Policy, store storage.Storage, bc *broadcast.Broadcaster) *Deriver {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Deriver{policy: policy, store: store, bc: bc}
}

// FromValidation derives and persists recommendations for a terminal
// validation result. A passing result with no qualifying findings yields
// none. Proposals are persisted in derivation order.
func (d *Deriver) FromValidation(ctx context.Context, result *types.ValidationResult) ([]*types.Recommendation, error) {
	if !result.Status.IsTerminal() {
		return nil, fmt.Errorf("validation %s is not terminal (%s)", result.ID, result.Status)
	}

	recs := d.policy.Derive(result)
	for _, rec := range recs {
		if err := d.store.CreateRecommendation(ctx, rec); err != nil {
			return nil, fmt.Errorf("persisting recommendation: %w", err)
		}
		if d.bc != nil {
			d.bc.Publish(broadcast.NewStatusEvent(broadcast.EventRecommendationProposed,
				"proposed: "+summarize(rec.Title),
				map[string]any{"rec_id": rec.ID, "validation_id": result.ID}))
		}
	}
	return recs, nil
}

func summarize(title string) string {
	if len(title) <= 80 {
		return title
	}
	return strings.TrimSpace(title[:77]) + "..."
}
