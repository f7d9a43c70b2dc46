package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRetention indicates a retention setting is out of range.
var ErrInvalidRetention = errors.New("invalid retention setting")

// RetentionConfig bounds how much validation history the store keeps.
// Pruning removes terminal validation results only; runs referenced by a
// recommendation are always kept, since a recommendation must never dangle.
type RetentionConfig struct {
	// Days is the retention period for validation results. Results older
	// than this are eligible for pruning.
	Days int

	// KeepPerArtifact is the number of most recent validation results
	// always kept per artifact, regardless of age.
	KeepPerArtifact int

	// BatchSize is the number of validation results deleted per
	// transaction. Larger batches prune faster but hold locks longer.
	BatchSize int
}

// DefaultRetention returns the default retention policy: a month of
// history, the last five runs per artifact, deleted 500 at a time.
func DefaultRetention() RetentionConfig {
	return RetentionConfig{
		Days:            30,
		KeepPerArtifact: 5,
		BatchSize:       500,
	}
}

// Validate checks the retention settings, failing fast on the first problem.
func (r RetentionConfig) Validate() error {
	if r.Days < 1 || r.Days > 365 {
		return fmt.Errorf("%w: retention_days %d (want 1-365)", ErrInvalidRetention, r.Days)
	}
	if r.KeepPerArtifact < 1 || r.KeepPerArtifact > 1000 {
		return fmt.Errorf("%w: retention_keep_per_artifact %d (want 1-1000)", ErrInvalidRetention, r.KeepPerArtifact)
	}
	if r.BatchSize < 1 || r.BatchSize > 10000 {
		return fmt.Errorf("%w: retention_batch_size %d (want 1-10000)", ErrInvalidRetention, r.BatchSize)
	}
	return nil
}

// Cutoff returns the prune cutoff time for the policy relative to now.
func (r RetentionConfig) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -r.Days)
}
