package storage

import (
	"context"
	"time"

	"github.com/tbcv/tbcv/internal/storage/sqlite"
	"github.com/tbcv/tbcv/internal/types"
)

// Storage defines the interface for validation store backends. It is the only
// shared mutable resource in the core: the router creates validation results
// and findings, the workflow mutates recommendation status, and nothing else
// writes to it directly.
type Storage interface {
	// Artifacts
	CreateArtifact(ctx context.Context, artifact *types.Artifact) error
	GetArtifact(ctx context.Context, id string) (*types.Artifact, error)

	// Validation results. Findings are append-only while the run is
	// non-terminal and frozen afterwards; status updates are guarded
	// compare-and-swap operations.
	CreateValidation(ctx context.Context, result *types.ValidationResult) error
	GetValidation(ctx context.Context, id string) (*types.ValidationResult, error)
	SetValidationStatus(ctx context.Context, id string, from, to types.ValidationStatus, completedAt *time.Time) error
	AppendFindings(ctx context.Context, validationID string, findings []*types.Finding) error
	RecentValidations(ctx context.Context, limit int) ([]*types.ValidationResult, error)

	// PruneValidations deletes terminal validation results older than the
	// cutoff, keeping the most recent keepPerArtifact runs per artifact and
	// every run a recommendation references. Returns how many were deleted.
	PruneValidations(ctx context.Context, cutoff time.Time, keepPerArtifact, batchSize int) (int, error)

	// Recommendations. TransitionRecommendation is a compare-and-swap on
	// status: it fails with ErrConcurrentModification when another writer
	// committed first, and with ErrTerminalState when the recommendation
	// already reached rejected or applied.
	CreateRecommendation(ctx context.Context, rec *types.Recommendation) error
	GetRecommendation(ctx context.Context, id string) (*types.Recommendation, error)
	ListRecommendations(ctx context.Context, filter types.RecommendationFilter) ([]*types.Recommendation, error)
	TransitionRecommendation(ctx context.Context, id string, from, to types.RecommendationStatus, decidedAt *time.Time, actor string) error

	// Enhancement records. A preview record is overwritten by later
	// previews; the committed record is single-shot.
	SaveEnhancement(ctx context.Context, record *types.EnhancementRecord) error
	GetEnhancement(ctx context.Context, recommendationID string, preview bool) (*types.EnhancementRecord, error)
	MarkEnhancementApplied(ctx context.Context, recommendationID string, appliedAt time.Time) error

	// Statistics
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Configuration key-value store
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests).
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".tbcv/tbcv.db",
	}
}

// NewStorage creates a new SQLite storage backend. PostgreSQL deployments
// construct the postgres backend directly.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = ".tbcv/tbcv.db"
	}
	return sqlite.New(cfg.Path)
}
