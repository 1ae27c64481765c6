package earnings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads and deletes raw earning values. Writes happen in the
// calculator UI collaborator; the closure pipeline only consumes and purges.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs an earnings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRange returns every raw value for a model within [from, to].
func (r *Repository) ListRange(ctx context.Context, modelID uuid.UUID, from, to time.Time) ([]RawValue, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("earnings: repository not initialised")
	}
	const query = `
		SELECT model_id, platform_id, period_date, value, updated_at
		FROM model_values
		WHERE model_id = $1 AND period_date >= $2 AND period_date <= $3
		ORDER BY platform_id, updated_at`
	rows, err := r.pool.Query(ctx, query, modelID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []RawValue
	for rows.Next() {
		var v RawValue
		if err := rows.Scan(&v.ModelID, &v.PlatformID, &v.PeriodDate, &v.Value, &v.UpdatedAt); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// CountRange counts raw rows for a model within [from, to].
func (r *Repository) CountRange(ctx context.Context, modelID uuid.UUID, from, to time.Time) (int, error) {
	if r == nil || r.pool == nil {
		return 0, fmt.Errorf("earnings: repository not initialised")
	}
	const query = `
		SELECT COUNT(*) FROM model_values
		WHERE model_id = $1 AND period_date >= $2 AND period_date <= $3`
	var count int
	if err := r.pool.QueryRow(ctx, query, modelID, from, to).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteRange removes a model's raw rows within [from, to] and returns the
// number of rows removed. This is the only destructive statement in the
// pipeline and runs strictly after archive and backup verification.
func (r *Repository) DeleteRange(ctx context.Context, modelID uuid.UUID, from, to time.Time) (int, error) {
	if r == nil || r.pool == nil {
		return 0, fmt.Errorf("earnings: repository not initialised")
	}
	const query = `
		DELETE FROM model_values
		WHERE model_id = $1 AND period_date >= $2 AND period_date <= $3`
	tag, err := r.pool.Exec(ctx, query, modelID, from, to)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ActiveModelIDs returns the distinct models holding raw values within
// [from, to]; the closure sweep and freeze sweep iterate this set.
func (r *Repository) ActiveModelIDs(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("earnings: repository not initialised")
	}
	const query = `
		SELECT DISTINCT model_id FROM model_values
		WHERE period_date >= $1 AND period_date <= $2
		ORDER BY model_id`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
