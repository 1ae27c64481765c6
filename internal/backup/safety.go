package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studioledger/studioledger/internal/shared"
)

// SafetyRepository persists the pre-delete safety copy used inside
// archive-and-reset. It is independent of both the archive table and the
// snapshot store.
type SafetyRepository struct {
	pool *pgxpool.Pool
}

// NewSafetyRepository constructs the repository.
func NewSafetyRepository(pool *pgxpool.Pool) *SafetyRepository {
	return &SafetyRepository{pool: pool}
}

// UpsertRows writes the safety copy for a run, idempotent on the natural
// key, and returns how many rows the backup now covers.
func (r *SafetyRepository) UpsertRows(ctx context.Context, rows []SafetyRow) (int, error) {
	if r == nil || r.pool == nil {
		return 0, fmt.Errorf("backup: safety repository not initialised")
	}
	const query = `
		INSERT INTO closure_backups
			(model_id, platform_id, value_date, period_date, period_type, value, value_updated_at, rates, config, verified, deleted_from_model_values, backed_up_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, FALSE, NOW())
		ON CONFLICT (model_id, platform_id, value_date, period_type) DO UPDATE
		SET value = EXCLUDED.value,
		    value_updated_at = EXCLUDED.value_updated_at,
		    rates = EXCLUDED.rates,
		    config = EXCLUDED.config,
		    verified = FALSE,
		    deleted_from_model_values = FALSE,
		    backed_up_at = NOW()`
	for _, row := range rows {
		_, err := r.pool.Exec(ctx, query,
			row.ModelID, row.PlatformID, row.ValueDate, row.PeriodDate, string(row.PeriodType),
			row.Value, row.UpdatedAt, row.RatesJSON, row.ConfigJSON)
		if err != nil {
			return 0, err
		}
	}
	return r.CountForRun(ctx, rows)
}

// CountForRun counts the backup rows covering the same model+period+type
// as the provided rows.
func (r *SafetyRepository) CountForRun(ctx context.Context, rows []SafetyRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ref := rows[0]
	return r.Count(ctx, ref.ModelID, ref.PeriodDate, ref.PeriodType)
}

// Count counts backup rows for a model and reference period.
func (r *SafetyRepository) Count(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) (int, error) {
	if r == nil || r.pool == nil {
		return 0, fmt.Errorf("backup: safety repository not initialised")
	}
	const query = `
		SELECT COUNT(*) FROM closure_backups
		WHERE model_id = $1 AND period_date = $2 AND period_type = $3`
	var count int
	if err := r.pool.QueryRow(ctx, query, modelID, periodDate, string(periodType)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkVerified flags the backup rows once archive and backup completeness
// have both been re-checked.
func (r *SafetyRepository) MarkVerified(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("backup: safety repository not initialised")
	}
	const query = `
		UPDATE closure_backups SET verified = TRUE
		WHERE model_id = $1 AND period_date = $2 AND period_type = $3`
	_, err := r.pool.Exec(ctx, query, modelID, periodDate, string(periodType))
	return err
}

// MarkDeleted flags the rows after the live delete was confirmed.
func (r *SafetyRepository) MarkDeleted(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("backup: safety repository not initialised")
	}
	const query = `
		UPDATE closure_backups SET deleted_from_model_values = TRUE
		WHERE model_id = $1 AND period_date = $2 AND period_type = $3`
	_, err := r.pool.Exec(ctx, query, modelID, periodDate, string(periodType))
	return err
}
