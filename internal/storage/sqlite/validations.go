package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tbcv/tbcv/internal/types"
)

// CreateValidation stores a new validation result. Findings present on the
// result are persisted in the same transaction, preserving their positions.
func (s *SQLiteStorage) CreateValidation(ctx context.Context, result *types.ValidationResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("invalid validation result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO validations (id, artifact_id, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?)
	`, result.ID, result.ArtifactID, result.Status, result.CreatedAt, nullTime(result.CompletedAt))
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: artifact %s", types.ErrReferentialIntegrity, result.ArtifactID)
		}
		return fmt.Errorf("failed to create validation: %w", err)
	}

	for _, f := range result.Findings {
		if err := insertFinding(ctx, tx, result.ID, f); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetValidation retrieves a validation result with its findings ordered by
// position
func (s *SQLiteStorage) GetValidation(ctx context.Context, id string) (*types.ValidationResult, error) {
	var v types.ValidationResult
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, artifact_id, status, created_at, completed_at
		FROM validations WHERE id = ?
	`, id).Scan(&v.ID, &v.ArtifactID, &v.Status, &v.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: validation %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get validation: %w", err)
	}
	if completedAt.Valid {
		v.CompletedAt = &completedAt.Time
	}

	findings, err := s.getFindings(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Findings = findings
	return &v, nil
}

// SetValidationStatus transitions a validation run's status with a
// compare-and-swap on the expected current status. Transitioning to a
// terminal status freezes the findings.
func (s *SQLiteStorage) SetValidationStatus(ctx context.Context, id string, from, to types.ValidationStatus, completedAt *time.Time) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: validation %s cannot go %s -> %s", types.ErrInvalidTransition, id, from, to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE validations SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, to, nullTime(completedAt), id, from)
	if err != nil {
		return fmt.Errorf("failed to update validation status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		// Either the run does not exist or another writer moved it first.
		var current types.ValidationStatus
		err := s.db.QueryRowContext(ctx, "SELECT status FROM validations WHERE id = ?", id).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: validation %s", types.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to read validation status: %w", err)
		}
		return fmt.Errorf("%w: validation %s is %s, expected %s", types.ErrConcurrentModification, id, current, from)
	}
	return nil
}

// AppendFindings adds findings to a running validation. Findings are
// append-only while the run is non-terminal and rejected afterwards.
func (s *SQLiteStorage) AppendFindings(ctx context.Context, validationID string, findings []*types.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status types.ValidationStatus
	err = tx.QueryRowContext(ctx, "SELECT status FROM validations WHERE id = ?", validationID).Scan(&status)
	if err == sql.ErrNoRows {
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
	return tx.Commit()
}

// RecentValidations returns the most recent validation results, newest first,
// with findings populated.
func (s *SQLiteStorage) RecentValidations(ctx context.Context, limit int) ([]*types.ValidationResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, artifact_id, status, created_at, completed_at
		FROM validations ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list validations: %w", err)
	}
	defer rows.Close()

	var results []*types.ValidationResult
	for rows.Next() {
		var v types.ValidationResult
		var completedAt sql.NullTime
		if err := rows.Scan(&v.ID, &v.ArtifactID, &v.Status, &v.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan validation: %w", err)
		}
		if completedAt.Valid {
			v.CompletedAt = &completedAt.Time
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
func (s *SQLiteStorage) PruneValidations(ctx context.Context, cutoff time.Time, keepPerArtifact, batchSize int) (int, error) {
	if keepPerArtifact < 1 {
		keepPerArtifact = 1
	}
	if batchSize < 1 {
		batchSize = 500
	}

	total := 0
	for {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM validations WHERE id IN (
				SELECT v.id FROM validations v
				WHERE v.created_at < ?
				  AND v.status IN (?, ?, ?)
				  AND NOT EXISTS (
				      SELECT 1 FROM recommendations r WHERE r.validation_id = v.id
				  )
				  AND v.id NOT IN (
				      SELECT v2.id FROM validations v2
				      WHERE v2.artifact_id = v.artifact_id
				      ORDER BY v2.created_at DESC, v2.id DESC
				      LIMIT ?
				  )
				ORDER BY v.created_at, v.id
				LIMIT ?
			)
		`, cutoff, types.ValidationPassed, types.ValidationFailed, types.ValidationError,
			keepPerArtifact, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to prune validations: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to check rows affected: %w", err)
		}
		total += int(n)
		if int(n) < batchSize {
			return total, nil
		}
	}
}

func (s *SQLiteStorage) getFindings(ctx context.Context, validationID string) ([]*types.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT validation_id, validator_kind, severity, message, location, position, infrastructure
		FROM findings WHERE validation_id = ? ORDER BY position, id
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

func insertFinding(ctx context.Context, tx *sql.Tx, validationID string, f *types.Finding) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid finding: %w", err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO findings (validation_id, validator_kind, severity, message, location, position, infrastructure)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, validationID, f.ValidatorKind, f.Severity, f.Message, f.Location, f.Position, f.Infrastructure)
	if err != nil {
		return fmt.Errorf("failed to insert finding: %w", err)
	}
	return nil
}
