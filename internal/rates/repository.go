package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoActiveRateSet indicates no open-ended active rate row exists.
var ErrNoActiveRateSet = errors.New("rates: no active rate set")

// ErrConfigNotFound indicates the model has no active revenue config row.
var ErrConfigNotFound = errors.New("rates: model config not found")

// Repository reads exchange rates and model revenue configuration.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a rates repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActiveRateSet returns the single active, open-ended rate set.
func (r *Repository) ActiveRateSet(ctx context.Context) (RateSet, error) {
	if r == nil || r.pool == nil {
		return RateSet{}, fmt.Errorf("rates: repository not initialised")
	}
	const query = `
		SELECT rate_usd_cop, rate_eur_usd, rate_gbp_usd, valid_from, valid_to
		FROM exchange_rates
		WHERE active = TRUE AND valid_to IS NULL
		ORDER BY valid_from DESC
		LIMIT 1`
	var (
		set     RateSet
		usdCop  pgtype.Float8
		eurUsd  pgtype.Float8
		gbpUsd  pgtype.Float8
		validTo pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, query).Scan(&usdCop, &eurUsd, &gbpUsd, &set.ValidFrom, &validTo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RateSet{}, ErrNoActiveRateSet
		}
		return RateSet{}, err
	}
	if usdCop.Valid {
		set.USDCOP = usdCop.Float64
	}
	if eurUsd.Valid {
		set.EURUSD = eurUsd.Float64
	}
	if gbpUsd.Valid {
		set.GBPUSD = gbpUsd.Float64
	}
	if validTo.Valid {
		t := validTo.Time
		set.ValidTo = &t
	}
	set.Active = true
	return set, nil
}

// RateHistory returns every rate set, newest first, for snapshot payloads.
func (r *Repository) RateHistory(ctx context.Context, limit int) ([]RateSet, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("rates: repository not initialised")
	}
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT rate_usd_cop, rate_eur_usd, rate_gbp_usd, valid_from, valid_to, active
		FROM exchange_rates
		ORDER BY valid_from DESC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []RateSet
	for rows.Next() {
		var (
			set     RateSet
			validTo pgtype.Timestamptz
		)
		if err := rows.Scan(&set.USDCOP, &set.EURUSD, &set.GBPUSD, &set.ValidFrom, &validTo, &set.Active); err != nil {
			return nil, err
		}
		if validTo.Valid {
			t := validTo.Time
			set.ValidTo = &t
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// ModelConfigFor returns the active revenue config for a model.
func (r *Repository) ModelConfigFor(ctx context.Context, modelID uuid.UUID) (ModelConfig, error) {
	if r == nil || r.pool == nil {
		return ModelConfig{}, fmt.Errorf("rates: repository not initialised")
	}
	const query = `
		SELECT percentage_override, group_percentage
		FROM model_revenue_config
		WHERE model_id = $1 AND active = TRUE
		LIMIT 1`
	var (
		override pgtype.Float8
		group    pgtype.Float8
	)
	err := r.pool.QueryRow(ctx, query, modelID).Scan(&override, &group)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ModelConfig{}, ErrConfigNotFound
		}
		return ModelConfig{}, err
	}
	cfg := ModelConfig{ModelID: modelID, Active: true}
	if override.Valid {
		v := override.Float64
		cfg.PercentageOverride = &v
	}
	if group.Valid {
		v := group.Float64
		cfg.GroupPercentage = &v
	}
	return cfg, nil
}
