package freeze

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studioledger/studioledger/internal/shared"
)

type repository interface {
	UpsertMarks(ctx context.Context, periodDate time.Time, modelID uuid.UUID, platformIDs []string) (int, error)
	Exists(ctx context.Context, periodDate time.Time, modelID uuid.UUID, platformID string) (bool, error)
	ListForModel(ctx context.Context, periodDate time.Time, modelID uuid.UUID) ([]string, error)
}

type metrics interface {
	FrozenPlatforms(n int)
}

// Service is the early-freeze manager: it marks platforms immutable for a
// model ahead of the general period close.
type Service struct {
	repo    repository
	logger  *slog.Logger
	metrics metrics
}

// NewService constructs a freeze service.
func NewService(repo repository, logger *slog.Logger, m metrics) *Service {
	return &Service{repo: repo, logger: logger, metrics: m}
}

// FreezePlatformsForModel marks the given platforms frozen for the model's
// period. Duplicate marks never error.
func (s *Service) FreezePlatformsForModel(ctx context.Context, periodDate time.Time, modelID uuid.UUID, platformIDs []string) error {
	if len(platformIDs) == 0 {
		return ErrNoPlatforms
	}
	reference := shared.PeriodReference(periodDate)
	inserted, err := s.repo.UpsertMarks(ctx, reference, modelID, platformIDs)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.FrozenPlatforms(inserted)
	}
	if s.logger != nil && inserted > 0 {
		s.logger.Info("platforms frozen",
			slog.String("model_id", modelID.String()),
			slog.Time("period_date", reference),
			slog.Int("frozen", inserted),
		)
	}
	return nil
}

// IsPlatformFrozen reports whether a platform is frozen for the model's period.
func (s *Service) IsPlatformFrozen(ctx context.Context, periodDate time.Time, modelID uuid.UUID, platformID string) (bool, error) {
	return s.repo.Exists(ctx, shared.PeriodReference(periodDate), modelID, platformID)
}

// GetFrozenPlatformsForModel lists the frozen platform ids for a model,
// consumed by the calculator UI to disable input fields.
func (s *Service) GetFrozenPlatformsForModel(ctx context.Context, periodDate time.Time, modelID uuid.UUID) ([]string, error) {
	return s.repo.ListForModel(ctx, shared.PeriodReference(periodDate), modelID)
}
