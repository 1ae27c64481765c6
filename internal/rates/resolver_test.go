package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type fakeRepo struct {
	rates    RateSet
	ratesErr error
	cfg      ModelConfig
	cfgErr   error
	calls    int
}

func (f *fakeRepo) ActiveRateSet(ctx context.Context) (RateSet, error) {
	f.calls++
	if f.ratesErr != nil {
		return RateSet{}, f.ratesErr
	}
	return f.rates, nil
}

func (f *fakeRepo) RateHistory(ctx context.Context, limit int) ([]RateSet, error) {
	return []RateSet{f.rates}, nil
}

func (f *fakeRepo) ModelConfigFor(ctx context.Context, modelID uuid.UUID) (ModelConfig, error) {
	if f.cfgErr != nil {
		return ModelConfig{}, f.cfgErr
	}
	return f.cfg, nil
}

func testDefaults() Defaults {
	return Defaults{USDCOP: 3900, EURUSD: 1.01, GBPUSD: 1.20, ModelPercentage: 80}
}

func TestActiveRatesFallsBackToDefaults(t *testing.T) {
	repo := &fakeRepo{ratesErr: ErrNoActiveRateSet}
	resolver := NewResolver(repo, nil, testDefaults())

	set, err := resolver.ActiveRates(context.Background())
	if err != nil {
		t.Fatalf("ActiveRates() error = %v", err)
	}
	if set.USDCOP != 3900 || set.EURUSD != 1.01 || set.GBPUSD != 1.20 {
		t.Fatalf("expected default rates, got %+v", set)
	}
}

func TestActiveRatesDefaultsMissingFields(t *testing.T) {
	repo := &fakeRepo{rates: RateSet{USDCOP: 4100, ValidFrom: time.Now(), Active: true}}
	resolver := NewResolver(repo, nil, testDefaults())

	set, err := resolver.ActiveRates(context.Background())
	if err != nil {
		t.Fatalf("ActiveRates() error = %v", err)
	}
	if set.USDCOP != 4100 {
		t.Fatalf("expected stored usd_cop 4100 got %v", set.USDCOP)
	}
	if set.EURUSD != 1.01 || set.GBPUSD != 1.20 {
		t.Fatalf("expected defaulted eur/gbp rates got %+v", set)
	}
}

func TestActiveRatesPropagatesQueryErrors(t *testing.T) {
	boom := errors.New("connection reset")
	repo := &fakeRepo{ratesErr: boom}
	resolver := NewResolver(repo, nil, testDefaults())

	if _, err := resolver.ActiveRates(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}
}

func TestActiveRatesUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)

	repo := &fakeRepo{rates: RateSet{USDCOP: 4000, EURUSD: 1.0, GBPUSD: 1.2, Active: true}}
	resolver := NewResolver(repo, cache, testDefaults())

	if _, err := resolver.ActiveRates(context.Background()); err != nil {
		t.Fatalf("first ActiveRates() error = %v", err)
	}
	set, err := resolver.ActiveRates(context.Background())
	if err != nil {
		t.Fatalf("second ActiveRates() error = %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one repository call, got %d", repo.calls)
	}
	if set.USDCOP != 4000 {
		t.Fatalf("expected cached usd_cop 4000 got %v", set.USDCOP)
	}
}

func TestFreshActiveRatesBypassesCachedSet(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)

	repo := &fakeRepo{rates: RateSet{USDCOP: 4000, EURUSD: 1.0, GBPUSD: 1.2, Active: true}}
	resolver := NewResolver(repo, cache, testDefaults())

	if _, err := resolver.ActiveRates(context.Background()); err != nil {
		t.Fatalf("ActiveRates() error = %v", err)
	}
	// A same-day rate change lands after the set was cached.
	repo.rates.USDCOP = 4200

	set, err := resolver.FreshActiveRates(context.Background())
	if err != nil {
		t.Fatalf("FreshActiveRates() error = %v", err)
	}
	if set.USDCOP != 4200 {
		t.Fatalf("expected fresh usd_cop 4200 got %v", set.USDCOP)
	}
	if repo.calls != 2 {
		t.Fatalf("expected a second repository call, got %d", repo.calls)
	}
}

func TestResolvedPercentageChain(t *testing.T) {
	override := 65.0
	group := 70.0
	cases := []struct {
		name string
		cfg  ModelConfig
		err  error
		want float64
	}{
		{"override wins", ModelConfig{PercentageOverride: &override, GroupPercentage: &group}, nil, 65},
		{"group when no override", ModelConfig{GroupPercentage: &group}, nil, 70},
		{"default when empty", ModelConfig{}, nil, 80},
		{"default when missing row", ModelConfig{}, ErrConfigNotFound, 80},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeRepo{cfg: tc.cfg, cfgErr: tc.err}
			resolver := NewResolver(repo, nil, testDefaults())
			got, err := resolver.ResolvedPercentage(context.Background(), uuid.New())
			if err != nil {
				t.Fatalf("ResolvedPercentage() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}
