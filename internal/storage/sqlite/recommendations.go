package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tbcv/tbcv/internal/types"
)

// CreateRecommendation stores a new recommendation. The back-reference to its
// validation result is enforced: a recommendation must never dangle.
func (s *SQLiteStorage) CreateRecommendation(ctx context.Context, rec *types.Recommendation) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid recommendation: %w", err)
	}

	// FK enforcement alone would defer the failure to commit time with a
	// less useful message, so check the reference explicitly first.
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM validations WHERE id = ?", rec.ValidationID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: recommendation %s references missing validation %s",
			types.ErrReferentialIntegrity, rec.ID, rec.ValidationID)
	}
	if err != nil {
		return fmt.Errorf("failed to check validation reference: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recommendations (id, validation_id, title, description, status, created_at, decided_at, decided_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.ValidationID, rec.Title, rec.Description, rec.Status, rec.CreatedAt, nullTime(rec.DecidedAt), rec.DecidedBy)
	if err != nil {
		return fmt.Errorf("failed to create recommendation: %w", err)
	}
	return nil
}

// GetRecommendation retrieves a recommendation by ID
func (s *SQLiteStorage) GetRecommendation(ctx context.Context, id string) (*types.Recommendation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, validation_id, title, description, status, created_at, decided_at, decided_by
		FROM recommendations WHERE id = ?
	`, id)
	rec, err := scanRecommendation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: recommendation %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return rec, nil
}

// ListRecommendations returns recommendations matching the filter, in
// creation order.
func (s *SQLiteStorage) ListRecommendations(ctx context.Context, filter types.RecommendationFilter) ([]*types.Recommendation, error) {
	query := `
		SELECT id, validation_id, title, description, status, created_at, decided_at, decided_by
		FROM recommendations WHERE 1=1`
	var args []interface{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.ValidationID != nil {
		query += " AND validation_id = ?"
		args = append(args, *filter.ValidationID)
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	var recs []*types.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recommendations: %w", err)
	}
	return recs, nil
}

// TransitionRecommendation moves a recommendation from one status to another
// with a compare-and-swap on the expected current status. A lost race is
// reported as ErrConcurrentModification, or ErrTerminalState when the winner
// already parked the recommendation in rejected or applied. A stale
// double-approval is a correctness bug, not a queueing situation, so this
// fails fast rather than serializing.
func (s *SQLiteStorage) TransitionRecommendation(ctx context.Context, id string, from, to types.RecommendationStatus, decidedAt *time.Time, actor string) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: recommendation %s is %s", types.ErrTerminalState, id, from)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: recommendation %s cannot go %s -> %s", types.ErrInvalidTransition, id, from, to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE recommendations
		SET status = ?,
		    decided_at = COALESCE(?, decided_at),
		    decided_by = CASE WHEN ? != '' THEN ? ELSE decided_by END
		WHERE id = ? AND status = ?
	`, to, nullTime(decidedAt), actor, actor, id, from)
	if err != nil {
		return fmt.Errorf("failed to transition recommendation: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	// CAS missed: distinguish not-found, terminal, and plain race.
	var current types.RecommendationStatus
	err = s.db.QueryRowContext(ctx, "SELECT status FROM recommendations WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: recommendation %s", types.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read recommendation status: %w", err)
	}
	if current.IsTerminal() {
		return fmt.Errorf("%w: recommendation %s is %s", types.ErrTerminalState, id, current)
	}
	return fmt.Errorf("%w: recommendation %s is %s, expected %s", types.ErrConcurrentModification, id, current, from)
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanRecommendation
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecommendation(row rowScanner) (*types.Recommendation, error) {
	var rec types.Recommendation
	var decidedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.ValidationID, &rec.Title, &rec.Description, &rec.Status, &rec.CreatedAt, &decidedAt, &rec.DecidedBy)
	if err != nil {
		return nil, err
	}
	if decidedAt.Valid {
		rec.DecidedAt = &decidedAt.Time
	}
	return &rec, nil
}
