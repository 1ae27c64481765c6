package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/studioledger/studioledger/internal/jobs"
	"github.com/studioledger/studioledger/internal/shared"
)

const dateLayout = "2006-01-02"

// FreezeService freezes platforms ahead of a period boundary.
type FreezeService interface {
	FreezePlatformsForModel(ctx context.Context, periodDate time.Time, modelID uuid.UUID, platformIDs []string) error
}

// ModelSource lists the models holding raw values within a period.
type ModelSource interface {
	ActiveModelIDs(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
}

// EarlyFreezeJob sweeps every active model and freezes the platforms whose
// upstream earnings are already final before the period formally ends.
type EarlyFreezeJob struct {
	Service     FreezeService
	Models      ModelSource
	PlatformIDs []string
	Location    *time.Location
	Concurrency int
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// NewEarlyFreezeJob constructs the job handler. platformIDs come from
// configuration; loc is the business timezone the boundary is judged in.
func NewEarlyFreezeJob(service FreezeService, models ModelSource, platformIDs []string, loc *time.Location, concurrency int, logger *slog.Logger, metrics *jobmetrics.Metrics) *EarlyFreezeJob {
	if loc == nil {
		loc = time.UTC
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &EarlyFreezeJob{
		Service:     service,
		Models:      models,
		PlatformIDs: platformIDs,
		Location:    loc,
		Concurrency: concurrency,
		Logger:      logger,
		Metrics:     metrics,
		clock:       time.Now,
	}
}

// Handle executes the early-freeze sweep.
func (j *EarlyFreezeJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil || j.Models == nil {
		return errors.New("early freeze: dependencies not configured")
	}
	var payload PeriodPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskEarlyFreeze)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if len(j.PlatformIDs) == 0 {
		j.log().Info("no early-freeze platforms configured, nothing to do")
		return resultErr
	}

	// The cron spec lists days 28-31 so it covers months of every length;
	// scheduled runs on the extra days are filtered out here. Runs carrying
	// an explicit period date are operator-triggered and always execute.
	if payload.PeriodDate == "" && !j.onBoundaryDay() {
		j.log().Info("not a period boundary day, skipping",
			slog.Time("now", j.now().In(j.Location)),
		)
		return resultErr
	}

	periodDate, periodType, err := j.resolvePeriod(payload)
	if err != nil {
		resultErr = err
		return resultErr
	}
	from, to, err := shared.PeriodRange(periodDate, periodType)
	if err != nil {
		resultErr = err
		return resultErr
	}

	modelIDs, err := j.Models.ActiveModelIDs(ctx, from, to)
	if err != nil {
		resultErr = err
		j.log().Error("list active models", slog.Any("error", err))
		return resultErr
	}
	if len(modelIDs) == 0 {
		j.log().Info("no active models in period", slog.Time("period_date", from))
		return resultErr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.Concurrency)
	for _, modelID := range modelIDs {
		g.Go(func() error {
			return j.Service.FreezePlatformsForModel(gctx, from, modelID, j.PlatformIDs)
		})
	}
	if err := g.Wait(); err != nil {
		resultErr = err
		j.metrics().AddModelsProcessed(TaskEarlyFreeze, "failure", 1)
		j.log().Error("freeze sweep", slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddModelsProcessed(TaskEarlyFreeze, "success", len(modelIDs))
	j.log().Info("early freeze sweep completed",
		slog.Time("period_date", from),
		slog.String("period_type", string(periodType)),
		slog.Int("models", len(modelIDs)),
		slog.Int("platforms", len(j.PlatformIDs)),
	)
	return resultErr
}

// onBoundaryDay reports whether today, in the business timezone, is the 15th
// or the last day of the month: the only days a period actually ends.
func (j *EarlyFreezeJob) onBoundaryDay() bool {
	now := j.now().In(j.Location)
	lastDay := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, j.Location).Day()
	return now.Day() == 15 || now.Day() == lastDay
}

// resolvePeriod defaults to the period currently running in the business
// timezone: the sweep fires shortly before that period's boundary.
func (j *EarlyFreezeJob) resolvePeriod(payload PeriodPayload) (time.Time, shared.PeriodType, error) {
	if payload.PeriodDate != "" {
		date, err := time.Parse(dateLayout, payload.PeriodDate)
		if err != nil {
			return time.Time{}, "", err
		}
		periodType := shared.PeriodTypeFor(date)
		if payload.PeriodType != "" {
			periodType, err = shared.ParsePeriodType(payload.PeriodType)
			if err != nil {
				return time.Time{}, "", err
			}
		}
		return shared.PeriodReference(date), periodType, nil
	}
	now := j.now().In(j.Location)
	return shared.PeriodReference(now), shared.PeriodTypeFor(now), nil
}

func (j *EarlyFreezeJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *EarlyFreezeJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskEarlyFreeze))
	}
	return slog.Default().With(slog.String("job", TaskEarlyFreeze))
}

func (j *EarlyFreezeJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *EarlyFreezeJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
