package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tbcv/tbcv/internal/types"
)

// CreateRecommendation stores a new recommendation; the validation
// back-reference is FK-enforced
func (s *PostgresStorage) CreateRecommendation(ctx context.Context, rec *types.Recommendation) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid recommendation: %w", err)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO recommendations (id, validation_id, title, description, status, created_at, decided_at, decided_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.ValidationID, rec.Title, rec.Description, rec.Status, rec.CreatedAt, rec.DecidedAt, rec.DecidedBy)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: recommendation %s references missing validation %s",
				types.ErrReferentialIntegrity, rec.ID, rec.ValidationID)
		}
		return fmt.Errorf("failed to create recommendation: %w", err)
	}
	return nil
}

// GetRecommendation retrieves a recommendation by ID
func (s *PostgresStorage) GetRecommendation(ctx context.Context, id string) (*types.Recommendation, error) {
	var rec types.Recommendation
	err := s.pool.QueryRow(ctx, `
		SELECT id, validation_id, title, description, status, created_at, decided_at, decided_by
		FROM recommendations WHERE id = $1
	`, id).Scan(&rec.ID, &rec.ValidationID, &rec.Title, &rec.Description, &rec.Status, &rec.CreatedAt, &rec.DecidedAt, &rec.DecidedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: recommendation %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return &rec, nil
}

// ListRecommendations returns recommendations matching the filter, in
// creation order
func (s *PostgresStorage) ListRecommendations(ctx context.Context, filter types.RecommendationFilter) ([]*types.Recommendation, error) {
	query := `
		SELECT id, validation_id, title, description, status, created_at, decided_at, decided_by
		FROM recommendations WHERE TRUE`
	var args []interface{}
	arg := 0

	if filter.Status != nil {
		arg++
		query += fmt.Sprintf(" AND status = $%d", arg)
		args = append(args, *filter.Status)
	}
	if filter.ValidationID != nil {
		arg++
		query += fmt.Sprintf(" AND validation_id = $%d", arg)
		args = append(args, *filter.ValidationID)
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		arg++
		query += fmt.Sprintf(" LIMIT $%d", arg)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	var recs []*types.Recommendation
	for rows.Next() {
		var rec types.Recommendation
		if err := rows.Scan(&rec.ID, &rec.ValidationID, &rec.Title, &rec.Description, &rec.Status, &rec.CreatedAt, &rec.DecidedAt, &rec.DecidedBy); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recommendations: %w", err)
	}
	return recs, nil
}

// TransitionRecommendation moves a recommendation between statuses with a
// compare-and-swap; see the sqlite backend for the conflict taxonomy
func (s *PostgresStorage) TransitionRecommendation(ctx context.Context, id string, from, to types.RecommendationStatus, decidedAt *time.Time, actor string) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: recommendation %s is %s", types.ErrTerminalState, id, from)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: recommendation %s cannot go %s -> %s", types.ErrInvalidTransition, id, from, to)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE recommendations
		SET status = $1,
		    decided_at = COALESCE($2, decided_at),
		    decided_by = CASE WHEN $3 != '' THEN $3 ELSE decided_by END
		WHERE id = $4 AND status = $5
	`, to, decidedAt, actor, id, from)
	if err != nil {
		return fmt.Errorf("failed to transition recommendation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current types.RecommendationStatus
	err = s.pool.QueryRow(ctx, "SELECT status FROM recommendations WHERE id = $1", id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
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

// SaveEnhancement stores an enhancement record; previews upsert, committed
// records are single-shot
func (s *PostgresStorage) SaveEnhancement(ctx context.Context, record *types.EnhancementRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid enhancement record: %w", err)
	}

	if record.Preview {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO enhancements (recommendation_id, preview, enhanced_content, created_at)
			VALUES ($1, TRUE, $2, $3)
			ON CONFLICT (recommendation_id, preview) DO UPDATE SET
				enhanced_content = EXCLUDED.enhanced_content,
				created_at = EXCLUDED.created_at
		`, record.RecommendationID, record.EnhancedContent, record.CreatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: enhancement references missing recommendation %s",
					types.ErrReferentialIntegrity, record.RecommendationID)
			}
			return fmt.Errorf("failed to save preview enhancement: %w", err)
		}
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO enhancements (recommendation_id, preview, enhanced_content, created_at, applied_at)
		VALUES ($1, FALSE, $2, $3, $4)
	`, record.RecommendationID, record.EnhancedContent, record.CreatedAt, record.AppliedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: recommendation %s already has a committed enhancement",
				types.ErrConcurrentModification, record.RecommendationID)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: enhancement references missing recommendation %s",
				types.ErrReferentialIntegrity, record.RecommendationID)
		}
		return fmt.Errorf("failed to save enhancement: %w", err)
	}
	return nil
}

// GetEnhancement retrieves the preview or committed enhancement record
func (s *PostgresStorage) GetEnhancement(ctx context.Context, recommendationID string, preview bool) (*types.EnhancementRecord, error) {
	var rec types.EnhancementRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, recommendation_id, preview, enhanced_content, created_at, applied_at
		FROM enhancements WHERE recommendation_id = $1 AND preview = $2
	`, recommendationID, preview).Scan(&rec.ID, &rec.RecommendationID, &rec.Preview, &rec.EnhancedContent, &rec.CreatedAt, &rec.AppliedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: enhancement for recommendation %s (preview=%t)", types.ErrNotFound, recommendationID, preview)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enhancement: %w", err)
	}
	return &rec, nil
}

// MarkEnhancementApplied records the apply timestamp on the committed record
func (s *PostgresStorage) MarkEnhancementApplied(ctx context.Context, recommendationID string, appliedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE enhancements SET applied_at = $1
		WHERE recommendation_id = $2 AND preview = FALSE
	`, appliedAt, recommendationID)
	if err != nil {
		return fmt.Errorf("failed to mark enhancement applied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: committed enhancement for recommendation %s", types.ErrNotFound, recommendationID)
	}
	return nil
}
