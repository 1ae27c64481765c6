package backup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/studioledger/studioledger/internal/earnings"
	"github.com/studioledger/studioledger/internal/rates"
	"github.com/studioledger/studioledger/internal/shared"
)

type memSnapshotStore struct {
	snaps map[uuid.UUID]Snapshot
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{snaps: map[uuid.UUID]Snapshot{}}
}

func (m *memSnapshotStore) Upsert(ctx context.Context, snap Snapshot) error {
	m.snaps[snap.ID] = snap
	return nil
}

func (m *memSnapshotStore) Get(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	snap, ok := m.snaps[id]
	if !ok {
		return Snapshot{}, ErrSnapshotNotFound
	}
	return snap, nil
}

func (m *memSnapshotStore) ListForModel(ctx context.Context, modelID uuid.UUID) ([]Snapshot, error) {
	var out []Snapshot
	for _, snap := range m.snaps {
		if snap.ModelID == modelID {
			out = append(out, snap)
		}
	}
	return out, nil
}

type stubRawSource struct {
	raws []earnings.RawValue
}

func (s stubRawSource) ListRange(ctx context.Context, modelID uuid.UUID, from, to time.Time) ([]earnings.RawValue, error) {
	return s.raws, nil
}

type stubRateSource struct{}

func (stubRateSource) ActiveRates(ctx context.Context) (rates.RateSet, error) {
	return rates.RateSet{USDCOP: 4000, EURUSD: 1.0, GBPUSD: 1.2}, nil
}

func (stubRateSource) History(ctx context.Context, limit int) ([]rates.RateSet, error) {
	return []rates.RateSet{{USDCOP: 4000, EURUSD: 1.0, GBPUSD: 1.2}}, nil
}

func (stubRateSource) ModelConfig(ctx context.Context, modelID uuid.UUID) (rates.ModelConfig, error) {
	return rates.ModelConfig{ModelID: modelID}, nil
}

func TestLogicalPeriodKeyIsDeterministic(t *testing.T) {
	model := uuid.MustParse("6f1e8a40-23dd-4c5e-9a1b-7a90f63f1a55")
	period := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	a := LogicalPeriodKey(period, shared.PeriodFirstHalf, model)
	b := LogicalPeriodKey(period, shared.PeriodFirstHalf, model)
	require.Equal(t, a, b)

	// different type, period, or model changes the key
	require.NotEqual(t, a, LogicalPeriodKey(period, shared.PeriodSecondHalf, model))
	require.NotEqual(t, a, LogicalPeriodKey(period.AddDate(0, 1, 0), shared.PeriodFirstHalf, model))
	require.NotEqual(t, a, LogicalPeriodKey(period, shared.PeriodFirstHalf, uuid.New()))
}

func TestCreateSnapshotIsIdempotent(t *testing.T) {
	store := newMemSnapshotStore()
	model := uuid.New()
	period := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(store, stubRawSource{raws: []earnings.RawValue{
		{ModelID: model, PlatformID: "chaturbate", PeriodDate: period, Value: 1000, UpdatedAt: period},
	}}, stubRateSource{}, nil, nil)

	first, err := svc.CreateSnapshot(context.Background(), model, period, shared.PeriodFirstHalf)
	require.NoError(t, err)
	second, err := svc.CreateSnapshot(context.Background(), model, period, shared.PeriodFirstHalf)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, store.snaps, 1)
}

func TestSnapshotChecksumVerifies(t *testing.T) {
	store := newMemSnapshotStore()
	model := uuid.New()
	period := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(store, stubRawSource{}, stubRateSource{}, nil, nil)

	id, err := svc.CreateSnapshot(context.Background(), model, period, shared.PeriodFirstHalf)
	require.NoError(t, err)

	ok, err := svc.VerifySnapshot(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)

	// tampering breaks verification
	snap := store.snaps[id]
	snap.Payload = append([]byte(nil), snap.Payload...)
	snap.Payload[0] ^= 0xFF
	store.snaps[id] = snap
	ok, err = svc.VerifySnapshot(context.Background(), id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateSnapshotRejectsBadPeriodType(t *testing.T) {
	svc := NewService(newMemSnapshotStore(), stubRawSource{}, stubRateSource{}, nil, nil)
	_, err := svc.CreateSnapshot(context.Background(), uuid.New(), time.Now(), shared.PeriodType("1-31"))
	require.ErrorIs(t, err, shared.ErrInvalidPeriodType)
}
