package rates

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type repository interface {
	ActiveRateSet(ctx context.Context) (RateSet, error)
	RateHistory(ctx context.Context, limit int) ([]RateSet, error)
	ModelConfigFor(ctx context.Context, modelID uuid.UUID) (ModelConfig, error)
}

// Resolver loads active rates and model revenue configuration, applying the
// documented defaults when no active rows exist. Query errors other than
// "no rows" are propagated unchanged: there is no silent fallback beyond
// the defaults.
type Resolver struct {
	repo     repository
	cache    *Cache
	defaults Defaults
}

// NewResolver constructs a Resolver.
func NewResolver(repo repository, cache *Cache, defaults Defaults) *Resolver {
	return &Resolver{repo: repo, cache: cache, defaults: defaults}
}

// DefaultRateSet returns the configured fallback rates.
func (r *Resolver) DefaultRateSet() RateSet {
	return RateSet{
		USDCOP: r.defaults.USDCOP,
		EURUSD: r.defaults.EURUSD,
		GBPUSD: r.defaults.GBPUSD,
	}
}

// ActiveRates returns the active rate set, defaulting missing fields and
// falling back entirely when no active row exists.
func (r *Resolver) ActiveRates(ctx context.Context) (RateSet, error) {
	if cached, ok := r.cache.Get(ctx); ok {
		return cached, nil
	}
	set, err := r.repo.ActiveRateSet(ctx)
	if err != nil {
		if errors.Is(err, ErrNoActiveRateSet) {
			return r.DefaultRateSet(), nil
		}
		return RateSet{}, err
	}
	if set.USDCOP == 0 {
		set.USDCOP = r.defaults.USDCOP
	}
	if set.EURUSD == 0 {
		set.EURUSD = r.defaults.EURUSD
	}
	if set.GBPUSD == 0 {
		set.GBPUSD = r.defaults.GBPUSD
	}
	r.cache.Put(ctx, set)
	return set, nil
}

// FreshActiveRates drops the cached rate set and resolves from the table.
// Archive rows are permanent, so the closure pipeline never trusts a set
// that may predate a same-day rate change.
func (r *Resolver) FreshActiveRates(ctx context.Context) (RateSet, error) {
	r.cache.Invalidate(ctx)
	return r.ActiveRates(ctx)
}

// History proxies the full rate history for snapshot payloads.
func (r *Resolver) History(ctx context.Context, limit int) ([]RateSet, error) {
	return r.repo.RateHistory(ctx, limit)
}

// ModelConfig returns the model's revenue config; a missing row resolves to
// an empty config so the percentage chain falls through to the default.
func (r *Resolver) ModelConfig(ctx context.Context, modelID uuid.UUID) (ModelConfig, error) {
	cfg, err := r.repo.ModelConfigFor(ctx, modelID)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return ModelConfig{ModelID: modelID}, nil
		}
		return ModelConfig{}, err
	}
	return cfg, nil
}

// ResolvedPercentage returns the model's share percentage after applying
// the override/group/default chain.
func (r *Resolver) ResolvedPercentage(ctx context.Context, modelID uuid.UUID) (float64, error) {
	cfg, err := r.ModelConfig(ctx, modelID)
	if err != nil {
		return 0, err
	}
	return cfg.ResolvedPercentage(r.defaults.ModelPercentage), nil
}
