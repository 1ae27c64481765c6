package freeze

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists freeze marks. The natural key is
// (period_date, model_id, platform_id); inserts are idempotent.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a freeze repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertMarks inserts freeze marks, ignoring duplicates. Returns the number
// of newly frozen platforms.
func (r *Repository) UpsertMarks(ctx context.Context, periodDate time.Time, modelID uuid.UUID, platformIDs []string) (int, error) {
	if r == nil || r.pool == nil {
		return 0, fmt.Errorf("freeze: repository not initialised")
	}
	const query = `
		INSERT INTO frozen_platforms (period_date, model_id, platform_id, frozen_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (period_date, model_id, platform_id) DO NOTHING`
	inserted := 0
	for _, platformID := range platformIDs {
		tag, err := r.pool.Exec(ctx, query, periodDate, modelID, platformID)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// Exists reports whether the pair is frozen for the period.
func (r *Repository) Exists(ctx context.Context, periodDate time.Time, modelID uuid.UUID, platformID string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, fmt.Errorf("freeze: repository not initialised")
	}
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM frozen_platforms
			WHERE period_date = $1 AND model_id = $2 AND platform_id = $3
		)`
	var frozen bool
	if err := r.pool.QueryRow(ctx, query, periodDate, modelID, platformID).Scan(&frozen); err != nil {
		return false, err
	}
	return frozen, nil
}

// ListForModel returns the frozen platform ids for a model and period.
func (r *Repository) ListForModel(ctx context.Context, periodDate time.Time, modelID uuid.UUID) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("freeze: repository not initialised")
	}
	const query = `
		SELECT platform_id FROM frozen_platforms
		WHERE period_date = $1 AND model_id = $2
		ORDER BY platform_id`
	rows, err := r.pool.Query(ctx, query, periodDate, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
