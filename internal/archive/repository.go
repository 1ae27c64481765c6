package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studioledger/studioledger/internal/shared"
)

// Repository persists archived earning records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs an archive repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertRecords writes archive rows keyed on the natural key, so re-running
// archival for the same period never duplicates rows.
func (r *Repository) UpsertRecords(ctx context.Context, records []Record) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("archive: repository not initialised")
	}
	const query = `
		INSERT INTO earnings_history
			(model_id, platform_id, period_date, period_type, value,
			 rate_eur_usd, rate_gbp_usd, rate_usd_cop, platform_percentage,
			 value_usd_bruto, value_usd_modelo, value_cop_modelo, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (model_id, platform_id, period_date, period_type) DO UPDATE
		SET value = EXCLUDED.value,
		    rate_eur_usd = EXCLUDED.rate_eur_usd,
		    rate_gbp_usd = EXCLUDED.rate_gbp_usd,
		    rate_usd_cop = EXCLUDED.rate_usd_cop,
		    platform_percentage = EXCLUDED.platform_percentage,
		    value_usd_bruto = EXCLUDED.value_usd_bruto,
		    value_usd_modelo = EXCLUDED.value_usd_modelo,
		    value_cop_modelo = EXCLUDED.value_cop_modelo,
		    archived_at = NOW()`
	for _, rec := range records {
		_, err := r.pool.Exec(ctx, query,
			rec.ModelID, rec.PlatformID, rec.PeriodDate, string(rec.PeriodType), rec.Value,
			rec.RateEURUSD, rec.RateGBPUSD, rec.RateUSDCOP, rec.PlatformPercentage,
			rec.ValueUSDBruto, rec.ValueUSDModelo, rec.ValueCOPModelo)
		if err != nil {
			return err
		}
	}
	return nil
}

// VerifyPeriod re-queries the archive for one (model, period, type) and
// reports row count, platform ids, and how many rows carry null computed
// values. The service compares this against the intended write.
func (r *Repository) VerifyPeriod(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) (VerifyReport, error) {
	if r == nil || r.pool == nil {
		return VerifyReport{}, fmt.Errorf("archive: repository not initialised")
	}
	const query = `
		SELECT platform_id,
		       (value_usd_bruto IS NULL OR value_usd_modelo IS NULL OR value_cop_modelo IS NULL) AS has_null
		FROM earnings_history
		WHERE model_id = $1 AND period_date = $2 AND period_type = $3
		ORDER BY platform_id`
	rows, err := r.pool.Query(ctx, query, modelID, periodDate, string(periodType))
	if err != nil {
		return VerifyReport{}, err
	}
	defer rows.Close()

	var report VerifyReport
	for rows.Next() {
		var (
			platformID string
			hasNull    bool
		)
		if err := rows.Scan(&platformID, &hasNull); err != nil {
			return VerifyReport{}, err
		}
		report.Count++
		report.PlatformIDs = append(report.PlatformIDs, platformID)
		if hasNull {
			report.NullNumerics++
		}
	}
	return report, rows.Err()
}

// ListForPeriod returns the archived rows for one (model, period, type),
// consumed by the history read API.
func (r *Repository) ListForPeriod(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("archive: repository not initialised")
	}
	const query = `
		SELECT model_id, platform_id, period_date, period_type, value,
		       rate_eur_usd, rate_gbp_usd, rate_usd_cop, platform_percentage,
		       value_usd_bruto, value_usd_modelo, value_cop_modelo, archived_at
		FROM earnings_history
		WHERE model_id = $1 AND period_date = $2 AND period_type = $3
		ORDER BY platform_id`
	rows, err := r.pool.Query(ctx, query, modelID, periodDate, string(periodType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec        Record
			periodType string
		)
		err := rows.Scan(&rec.ModelID, &rec.PlatformID, &rec.PeriodDate, &periodType, &rec.Value,
			&rec.RateEURUSD, &rec.RateGBPUSD, &rec.RateUSDCOP, &rec.PlatformPercentage,
			&rec.ValueUSDBruto, &rec.ValueUSDModelo, &rec.ValueCOPModelo, &rec.ArchivedAt)
		if err != nil {
			return nil, err
		}
		rec.PeriodType = shared.PeriodType(periodType)
		records = append(records, rec)
	}
	return records, rows.Err()
}
