package backup

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/studioledger/studioledger/internal/earnings"
	"github.com/studioledger/studioledger/internal/rates"
	"github.com/studioledger/studioledger/internal/shared"
)

type snapshotStore interface {
	Upsert(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, id uuid.UUID) (Snapshot, error)
	ListForModel(ctx context.Context, modelID uuid.UUID) ([]Snapshot, error)
}

type rawSource interface {
	ListRange(ctx context.Context, modelID uuid.UUID, from, to time.Time) ([]earnings.RawValue, error)
}

type rateSource interface {
	ActiveRates(ctx context.Context) (rates.RateSet, error)
	History(ctx context.Context, limit int) ([]rates.RateSet, error)
	ModelConfig(ctx context.Context, modelID uuid.UUID) (rates.ModelConfig, error)
}

type metrics interface {
	SnapshotWritten()
}

// Service captures point-in-time snapshots of raw values, rate history and
// model config. This is the recovery path independent of the safety backup
// taken inside archive-and-reset; financial data gets both.
type Service struct {
	store   snapshotStore
	raws    rawSource
	rates   rateSource
	logger  *slog.Logger
	metrics metrics
}

// NewService constructs a snapshot service.
func NewService(store snapshotStore, raws rawSource, rateSource rateSource, logger *slog.Logger, m metrics) *Service {
	return &Service{store: store, raws: raws, rates: rateSource, logger: logger, metrics: m}
}

type snapshotPayload struct {
	ModelID     uuid.UUID            `json:"model_id"`
	PeriodDate  string               `json:"period_date"`
	PeriodType  shared.PeriodType    `json:"period_type"`
	RawValues   []earnings.RawValue  `json:"raw_values"`
	RateHistory []rates.RateSet      `json:"rate_history"`
	ActiveRates rates.RateSet        `json:"active_rates"`
	Config      snapshotConfigRecord `json:"config"`
	TakenAt     time.Time            `json:"taken_at"`
}

type snapshotConfigRecord struct {
	PercentageOverride *float64 `json:"percentage_override,omitempty"`
	GroupPercentage    *float64 `json:"group_percentage,omitempty"`
}

// CreateSnapshot captures the current state for a logical period. Repeated
// calls for the same (periodDate, periodType, modelID) upsert the same row.
func (s *Service) CreateSnapshot(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) (uuid.UUID, error) {
	if !periodType.Valid() {
		return uuid.Nil, shared.ErrInvalidPeriodType
	}
	from, to, err := shared.PeriodRange(periodDate, periodType)
	if err != nil {
		return uuid.Nil, err
	}

	raws, err := s.raws.ListRange(ctx, modelID, from, to)
	if err != nil {
		return uuid.Nil, err
	}
	active, err := s.rates.ActiveRates(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	history, err := s.rates.History(ctx, 50)
	if err != nil {
		return uuid.Nil, err
	}
	cfg, err := s.rates.ModelConfig(ctx, modelID)
	if err != nil {
		return uuid.Nil, err
	}

	payload, err := json.Marshal(snapshotPayload{
		ModelID:     modelID,
		PeriodDate:  from.Format("2006-01-02"),
		PeriodType:  periodType,
		RawValues:   raws,
		RateHistory: history,
		ActiveRates: active,
		Config: snapshotConfigRecord{
			PercentageOverride: cfg.PercentageOverride,
			GroupPercentage:    cfg.GroupPercentage,
		},
		TakenAt: time.Now().UTC(),
	})
	if err != nil {
		return uuid.Nil, err
	}

	id := LogicalPeriodKey(from, periodType, modelID)
	sum := blake2b.Sum256(payload)
	snap := Snapshot{
		ID:         id,
		ModelID:    modelID,
		PeriodDate: from,
		PeriodType: periodType,
		Payload:    payload,
		Checksum:   hex.EncodeToString(sum[:]),
	}
	if err := s.store.Upsert(ctx, snap); err != nil {
		return uuid.Nil, err
	}
	if s.metrics != nil {
		s.metrics.SnapshotWritten()
	}
	if s.logger != nil {
		s.logger.Info("snapshot written",
			slog.String("model_id", modelID.String()),
			slog.String("snapshot_id", id.String()),
			slog.Int("raw_values", len(raws)),
		)
	}
	return id, nil
}

// VerifySnapshot re-hashes the stored payload against its checksum.
func (s *Service) VerifySnapshot(ctx context.Context, id uuid.UUID) (bool, error) {
	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	sum := blake2b.Sum256(snap.Payload)
	return hex.EncodeToString(sum[:]) == snap.Checksum, nil
}

// ListSnapshots returns snapshot metadata for a model.
func (s *Service) ListSnapshots(ctx context.Context, modelID uuid.UUID) ([]Snapshot, error) {
	return s.store.ListForModel(ctx, modelID)
}
