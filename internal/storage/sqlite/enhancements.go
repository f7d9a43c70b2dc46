package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tbcv/tbcv/internal/types"
)

// SaveEnhancement stores an enhancement record. Preview records are
// overwritten by later previews (a preview is a repeatable read-only
// projection); a committed record is single-shot and a second insert is a
// conflict.
func (s *SQLiteStorage) SaveEnhancement(ctx context.Context, record *types.EnhancementRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid enhancement record: %w", err)
	}

	if record.Preview {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO enhancements (recommendation_id, preview, enhanced_content, created_at)
			VALUES (?, 1, ?, ?)
			ON CONFLICT(recommendation_id, preview) DO UPDATE SET
				enhanced_content = excluded.enhanced_content,
				created_at = excluded.created_at
		`, record.RecommendationID, record.EnhancedContent, record.CreatedAt)
		if err != nil {
			if isForeignKeyError(err) {
				return fmt.Errorf("%w: enhancement references missing recommendation %s",
					types.ErrReferentialIntegrity, record.RecommendationID)
			}
			return fmt.Errorf("failed to save preview enhancement: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enhancements (recommendation_id, preview, enhanced_content, created_at, applied_at)
		VALUES (?, 0, ?, ?, ?)
	`, record.RecommendationID, record.EnhancedContent, record.CreatedAt, nullTime(record.AppliedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: recommendation %s already has a committed enhancement",
				types.ErrConcurrentModification, record.RecommendationID)
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: enhancement references missing recommendation %s",
				types.ErrReferentialIntegrity, record.RecommendationID)
		}
		return fmt.Errorf("failed to save enhancement: %w", err)
	}
	return nil
}

// GetEnhancement retrieves the preview or committed enhancement record for a
// recommendation
func (s *SQLiteStorage) GetEnhancement(ctx context.Context, recommendationID string, preview bool) (*types.EnhancementRecord, error) {
	var rec types.EnhancementRecord
	var appliedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, recommendation_id, preview, enhanced_content, created_at, applied_at
		FROM enhancements WHERE recommendation_id = ? AND preview = ?
	`, recommendationID, preview).Scan(&rec.ID, &rec.RecommendationID, &rec.Preview, &rec.EnhancedContent, &rec.CreatedAt, &appliedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: enhancement for recommendation %s (preview=%t)", types.ErrNotFound, recommendationID, preview)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enhancement: %w", err)
	}
	if appliedAt.Valid {
		rec.AppliedAt = &appliedAt.Time
	}
	return &rec, nil
}

// MarkEnhancementApplied records the apply timestamp on the committed
// enhancement record
func (s *SQLiteStorage) MarkEnhancementApplied(ctx context.Context, recommendationID string, appliedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE enhancements SET applied_at = ?
		WHERE recommendation_id = ? AND preview = 0
	`, appliedAt, recommendationID)
	if err != nil {
		return fmt.Errorf("failed to mark enhancement applied: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: committed enhancement for recommendation %s", types.ErrNotFound, recommendationID)
	}
	return nil
}
