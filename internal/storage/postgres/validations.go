package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tbcv/tbcv/internal/types"
)

// CreateValidation stores a new validation result and its findings in one
// transaction
func (s *PostgresStorage) CreateValidation(ctx context.Context, result *types.ValidationResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("invalid validation result: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO validations (id, artifact_id, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, result.ID, result.ArtifactID, result.Status, result.CreatedAt, result.CompletedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: artifact %s", types.ErrReferentialIntegrity, result.ArtifactID)
		}
		return fmt.Errorf("failed to create validation: %w", err)
	}

	for _, f := range result.Findings {
		if err := insertFinding(ctx, tx, result.ID, f); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetValidation retrieves a validation result with findings ordered by position
func (s *PostgresStorage) GetValidation(ctx context.Context, id string) (*types.ValidationResult, error) {
	var v types.ValidationResult
	err := s.pool.QueryRow(ctx, `
		SELECT id, artifact_id, status, created_at, completed_at
		FROM validations WHERE id = $1
	`, id).Scan(&v.ID, &v.ArtifactID, &v.Status, &v.CreatedAt, &v.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: validation %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get validation: %w", err)
	}

	findings, err := s.getFindings(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Findings = findings
	return &v, nil
}

// SetValidationStatus transitions a validation run's status with a
// compare-and-swap on the expected current status
func (s *PostgresStorage) SetValidationStatus(ctx context.Context, id string, from, to types.ValidationStatus, completedAt *time.Time) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: validation %s cannot go %s -> %s", types.ErrInvalidTransition, id, from, to)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE validations SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4
	`, to, completedAt, id, from)
	if err != nil {
		return fmt.Errorf("failed to update validation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current types.ValidationStatus
		err := s.pool.QueryRow(ctx, "SELECT status FROM validations WHERE id = $1", id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: validation %s", types.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to read validation status: %w", err)
		}
		return fmt.Errorf("%w: validation %s is %s, expected %s", types.ErrConcurrentModification, id, current, from)
	}
	return nil
}

// AppendFindings adds findings to a non-terminal validation run
func (s *PostgresStorage) AppendFindings(ctx context.Context, validationID string, findings []*types.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status types.ValidationStatus
	err = tx.QueryRow(ctx, "SELECT status FROM validations WHERE id = $1 FOR UPDATE", validationID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: validation %s", types.ErrNotFound, validationID)
	}
	if err != nil {
		return fmt.Errorf("failed to check validation status: %w", err)
	}
	if status.IsTerminal() {
		return fmt.Errorf("%w: validation %s is %s, findings are frozen", types.ErrInvalidTransition, validationID, status)
	}

	for _, f := range findings {
		if err := insertFinding(ctx, tx, validationID, f); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// RecentValidations returns the most recent validation results, newest first
func (s *PostgresStorage) RecentValidations(ctx context.Context, limit int) ([]*types.ValidationResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, artifact_id, status, created_at, completed_at
		FROM validations ORDER BY created_at DESC, id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list validations: %w", err)
	}
	defer rows.Close()

	var results []*types.ValidationResult
	for rows.Next() {
		var v types.ValidationResult
		if err := rows.Scan(&v.ID, &v.ArtifactID, &v.Status, &v.CreatedAt, &v.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan validation: %w", err)
		}
		results = append(results, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate validations: %w", err)
	}

	for _, v := range results {
		findings, err := s.getFindings(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		v.Findings = findings
	}
	return results, nil
}

// PruneValidations deletes terminal validation results created before the
// cutoff, in batches. The most recent keepPerArtifact runs of each artifact
// survive regardless of age, and runs referenced by a recommendation are
// never deleted. Findings go with their validation via the cascade.
func (s *PostgresStorage) PruneValidations(ctx context.Context, cutoff time.Time, keepPerArtifact, batchSize int) (int, error) {
	if keepPerArtifact < 1 {
		keepPerArtifact = 1
	}
	if batchSize < 1 {
		batchSize = 500
	}

	total := 0
	for {
		tag, err := s.pool.Exec(ctx, `
			DELETE FROM validations WHERE id IN (
				SELECT v.id FROM validations v
				WHERE v.created_at < $1
				  AND v.status IN ($2, $3, $4)
				  AND NOT EXISTS (
				      SELECT 1 FROM recommendations r WHERE r.validation_id = v.id
				  )
				  AND v.id NOT IN (
				      SELECT v2.id FROM validations v2
				      WHERE v2.artifact_id = v.artifact_id
				      ORDER BY v2.created_at DESC, v2.id DESC
				      LIMIT $5
				  )
				ORDER BY v.created_at, v.id
				LIMIT $6
			)
		`, cutoff, types.ValidationPassed, types.ValidationFailed, types.ValidationError,
			keepPerArtifact, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to prune validations: %w", err)
		}
		n := int(tag.RowsAffected())
		total += n
		if n < batchSize {
			return total, nil
		}
	}
}

func (s *PostgresStorage) getFindings(ctx context.Context, validationID string) ([]*types.Finding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT validation_id, validator_kind, severity, message, location, position, infrastructure
		FROM findings WHERE validation_id = $1 ORDER BY position, id
	`, validationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get findings: %w", err)
	}
	defer rows.Close()

	var findings []*types.Finding
	for rows.Next() {
		var f types.Finding
		if err := rows.Scan(&f.ValidationID, &f.ValidatorKind, &f.Severity, &f.Message, &f.Location, &f.Position, &f.Infrastructure); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate findings: %w", err)
	}
	return findings, nil
}

func insertFinding(ctx context.Context, tx pgx.Tx, validationID string, f *types.Finding) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid finding: %w", err)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO findings (validation_id, validator_kind, severity, message, location, position, infrastructure)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, validationID, f.ValidatorKind, f.Severity, f.Message, f.Location, f.Position, f.Infrastructure)
	if err != nil {
		return fmt.Errorf("failed to insert finding: %w", err)
	}
	return nil
}
