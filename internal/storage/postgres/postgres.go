package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tbcv/tbcv/internal/types"
)

// PostgresStorage implements the Storage interface using PostgreSQL
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL connection configuration
type Config struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "tbcv",
		User:            "tbcv",
		SSLMode:         "prefer",
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage backend with connection pooling
func New(ctx context.Context, cfg *Config) (*PostgresStorage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)
	return newFromConnString(ctx, connString, cfg)
}

// NewFromURL creates a backend from a postgres:// connection string, with
// default pool sizing.
func NewFromURL(ctx context.Context, connString string) (*PostgresStorage, error) {
	return newFromConnString(ctx, connString, DefaultConfig())
}

func newFromConnString(ctx context.Context, connString string, cfg *Config) (*PostgresStorage, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// Close closes the connection pool
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// CreateArtifact stores an artifact; resubmitting identical content is a no-op
func (s *PostgresStorage) CreateArtifact(ctx context.Context, artifact *types.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return fmt.Errorf("invalid artifact: %w", err)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (id, kind, locator, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, artifact.ID, artifact.Kind, artifact.Locator, artifact.Content, artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves an artifact by ID
func (s *PostgresStorage) GetArtifact(ctx context.Context, id string) (*types.Artifact, error) {
	var a types.Artifact
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, locator, content, created_at FROM artifacts WHERE id = $1
	`, id).Scan(&a.ID, &a.Kind, &a.Locator, &a.Content, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: artifact %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return &a, nil
}

// GetStatistics returns aggregate metrics over the store
func (s *PostgresStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{}
	err := s.pool.QueryRow(ctx, `
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
		&stats.TotalArtifacts, &stats.TotalValidations, &stats.PassedValidations,
		&stats.FailedValidations, &stats.ErroredValidations, &stats.TotalFindings,
		&stats.Recommendations, &stats.PendingDecisions,
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
func (s *PostgresStorage) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, "SELECT value FROM config WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return value, nil
}

// SetConfig stores a configuration value
func (s *PostgresStorage) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// isUniqueViolation checks for a PostgreSQL unique constraint violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation checks for a PostgreSQL foreign key violation
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
