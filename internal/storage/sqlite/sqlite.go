package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tbcv/tbcv/internal/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStorage, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; the pool must not hand
	// out a second one.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateArtifact stores an artifact. Re-submitting the same content is a
// no-op: the ID is content-addressed, so the existing row already describes
// the identical artifact.
func (s *SQLiteStorage) CreateArtifact(ctx context.Context, artifact *types.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return fmt.Errorf("invalid artifact: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, kind, locator, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, artifact.ID, artifact.Kind, artifact.Locator, artifact.Content, artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves an artifact by ID
func (s *SQLiteStorage) GetArtifact(ctx context.Context, id string) (*types.Artifact, error) {
	var a types.Artifact
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, locator, content, created_at
		FROM artifacts WHERE id = ?
	`, id).Scan(&a.ID, &a.Kind, &a.Locator, &a.Content, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: artifact %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &a, nil
}

// GetStatistics returns aggregate metrics over the store
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM artifacts),
			(SELECT COUNT(*) FROM validations),
			(SELECT COUNT(*) FROM validations WHERE status = 'passed'),
			(SELECT COUNT(*) FROM validations WHERE status = 'failed'),
			(SELECT COUNT(*) FROM validations WHERE status = 'error'),
			(SELECT COUNT(*) FROM findings),
			(SELECT COUNT(*) FROM recommendations),
			(SELECT COUNT(*) FROM recommendations WHERE status = 'proposed')
	`).Scan(
		&stats.TotalArtifacts,
		&stats.TotalValidations,
		&stats.PassedValidations,
		&stats.FailedValidations,
		&stats.ErroredValidations,
		&stats.TotalFindings,
		&stats.Recommendations,
		&stats.PendingDecisions,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to gather statistics: %w", err)
	}

	decided := stats.PassedValidations + stats.FailedValidations
	if decided > 0 {
		stats.PassRate = float64(stats.PassedValidations) / float64(decided)
	}
	return stats, nil
}

// GetConfig retrieves a configuration value by key
func (s *SQLiteStorage) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return value, nil
}

// SetConfig stores a configuration value
func (s *SQLiteStorage) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// isUniqueConstraintError checks whether an error is a sqlite unique
// constraint violation
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyError checks whether an error is a sqlite foreign key violation
func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// nullTime converts a *time.Time to a driver-friendly value
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
