package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/studioledger/studioledger/internal/archive"
	"github.com/studioledger/studioledger/internal/closure"
	jobmetrics "github.com/studioledger/studioledger/internal/jobs"
	"github.com/studioledger/studioledger/internal/shared"
)

// StatusService drives the period status machine.
type StatusService interface {
	GetStatus(ctx context.Context, periodDate time.Time, periodType shared.PeriodType) (closure.StatusRecord, error)
	UpdateStatus(ctx context.Context, periodDate time.Time, periodType shared.PeriodType, next closure.Status, metadata map[string]any) (closure.StatusRecord, error)
}

// ArchiveService archives one model's period.
type ArchiveService interface {
	ArchiveAndReset(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) (archive.Result, error)
}

// SnapshotService writes pre-archive recovery snapshots.
type SnapshotService interface {
	CreateSnapshot(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) (uuid.UUID, error)
}

// GuardJanitor drops in-flight markers older than the given age.
type GuardJanitor interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// staleRunAge bounds how long an in-flight marker may survive its owner. A
// single archive-and-reset run finishes in minutes; anything older belongs
// to a crashed worker and would otherwise block retries forever.
const staleRunAge = 2 * time.Hour

// ClosureSweepJob runs the full close of one ended period: walk the status
// machine, snapshot every active model, archive and purge their raw values,
// and mark the period completed. Any failure flips the period to failed;
// the retry path is a manual reset to pending.
type ClosureSweepJob struct {
	Status      StatusService
	Archives    ArchiveService
	Snapshots   SnapshotService
	Models      ModelSource
	Guard       GuardJanitor
	Location    *time.Location
	Concurrency int
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// NewClosureSweepJob constructs the sweep handler. guard may be nil when no
// run-guard cleanup is wanted.
func NewClosureSweepJob(status StatusService, archives ArchiveService, snapshots SnapshotService, models ModelSource, guard GuardJanitor, loc *time.Location, concurrency int, logger *slog.Logger, metrics *jobmetrics.Metrics) *ClosureSweepJob {
	if loc == nil {
		loc = time.UTC
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ClosureSweepJob{
		Status:      status,
		Archives:    archives,
		Snapshots:   snapshots,
		Models:      models,
		Guard:       guard,
		Location:    loc,
		Concurrency: concurrency,
		Logger:      logger,
		Metrics:     metrics,
		clock:       time.Now,
	}
}

// Handle executes the closure sweep.
func (j *ClosureSweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Status == nil || j.Archives == nil || j.Snapshots == nil || j.Models == nil {
		return errors.New("closure sweep: dependencies not configured")
	}
	var payload PeriodPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskClosureSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	periodDate, periodType, err := j.resolvePeriod(payload)
	if err != nil {
		resultErr = err
		return resultErr
	}
	resultErr = j.run(ctx, periodDate, periodType)
	return resultErr
}

func (j *ClosureSweepJob) run(ctx context.Context, periodDate time.Time, periodType shared.PeriodType) error {
	log := j.log().With(
		slog.Time("period_date", periodDate),
		slog.String("period_type", string(periodType)),
	)

	// Drop markers orphaned by a crashed worker before walking the period,
	// otherwise every model it held stays ErrRunInFlight forever.
	if j.Guard != nil {
		if removed, err := j.Guard.Cleanup(ctx, staleRunAge); err != nil {
			log.Warn("run guard cleanup", slog.Any("error", err))
		} else if removed > 0 {
			log.Warn("dropped stale run markers", slog.Int64("removed", removed))
		}
	}

	current, err := j.Status.GetStatus(ctx, periodDate, periodType)
	if err != nil && !errors.Is(err, closure.ErrStatusNotFound) {
		return err
	}
	switch current.Status {
	case closure.StatusCompleted:
		log.Info("period already completed, skipping sweep")
		return nil
	case closure.StatusFailed:
		log.Warn("period marked failed, waiting for manual reset to pending")
		return nil
	}

	from, to, err := shared.PeriodRange(periodDate, periodType)
	if err != nil {
		return err
	}
	modelIDs, err := j.Models.ActiveModelIDs(ctx, from, to)
	if err != nil {
		return err
	}

	if err := j.advance(ctx, periodDate, periodType, closure.StatusClosingCalculators, map[string]any{"models": len(modelIDs)}); err != nil {
		return err
	}
	if err := j.forEachModel(ctx, modelIDs, func(gctx context.Context, modelID uuid.UUID) error {
		_, err := j.Snapshots.CreateSnapshot(gctx, modelID, periodDate, periodType)
		return err
	}); err != nil {
		return j.fail(ctx, periodDate, periodType, "snapshot", err)
	}

	if err := j.advance(ctx, periodDate, periodType, closure.StatusWaitingSummary, nil); err != nil {
		return err
	}
	if err := j.advance(ctx, periodDate, periodType, closure.StatusClosingSummary, nil); err != nil {
		return err
	}
	if err := j.advance(ctx, periodDate, periodType, closure.StatusArchiving, nil); err != nil {
		return err
	}

	var archived, deleted atomic.Int64
	if err := j.forEachModel(ctx, modelIDs, func(gctx context.Context, modelID uuid.UUID) error {
		res, err := j.Archives.ArchiveAndReset(gctx, modelID, periodDate, periodType)
		if err != nil {
			return err
		}
		archived.Add(int64(res.Archived))
		deleted.Add(int64(res.Deleted))
		return nil
	}); err != nil {
		return j.fail(ctx, periodDate, periodType, "archive", err)
	}

	if err := j.advance(ctx, periodDate, periodType, closure.StatusCompleted, map[string]any{
		"models":   len(modelIDs),
		"archived": archived.Load(),
		"deleted":  deleted.Load(),
	}); err != nil {
		return err
	}

	j.metrics().AddModelsProcessed(TaskClosureSweep, "success", len(modelIDs))
	log.Info("closure sweep completed",
		slog.Int("models", len(modelIDs)),
		slog.Int64("archived", archived.Load()),
		slog.Int64("deleted", deleted.Load()),
	)
	return nil
}

func (j *ClosureSweepJob) forEachModel(ctx context.Context, modelIDs []uuid.UUID, fn func(ctx context.Context, modelID uuid.UUID) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.Concurrency)
	for _, modelID := range modelIDs {
		g.Go(func() error {
			if err := fn(gctx, modelID); err != nil {
				// a concurrent manual run already covers this model
				if errors.Is(err, shared.ErrRunInFlight) {
					j.log().Warn("model run already in flight, skipping",
						slog.String("model_id", modelID.String()),
					)
					return nil
				}
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// advance moves the status machine one step. Stages the period already
// passed (a resumed sweep) surface as invalid transitions and are skipped.
func (j *ClosureSweepJob) advance(ctx context.Context, periodDate time.Time, periodType shared.PeriodType, next closure.Status, metadata map[string]any) error {
	if _, err := j.Status.UpdateStatus(ctx, periodDate, periodType, next, metadata); err != nil {
		if errors.Is(err, closure.ErrInvalidTransition) {
			current, gerr := j.Status.GetStatus(ctx, periodDate, periodType)
			if gerr == nil && passedStage(current.Status, next) {
				return nil
			}
		}
		return err
	}
	return nil
}

func (j *ClosureSweepJob) fail(ctx context.Context, periodDate time.Time, periodType shared.PeriodType, stage string, cause error) error {
	j.metrics().AddModelsProcessed(TaskClosureSweep, "failure", 1)
	if _, err := j.Status.UpdateStatus(ctx, periodDate, periodType, closure.StatusFailed, map[string]any{
		"stage": stage,
		"error": cause.Error(),
	}); err != nil {
		j.log().Error("mark period failed", slog.Any("error", err))
	}
	return cause
}

// passedStage reports whether current is at or beyond the wanted stage in
// the closure lifecycle.
func passedStage(current, wanted closure.Status) bool {
	order := []closure.Status{
		closure.StatusPending,
		closure.StatusEarlyFreezing,
		closure.StatusClosingCalculators,
		closure.StatusWaitingSummary,
		closure.StatusClosingSummary,
		closure.StatusArchiving,
		closure.StatusCompleted,
	}
	pos := func(s closure.Status) int {
		for i, v := range order {
			if v == s {
				return i
			}
		}
		return -1
	}
	c, w := pos(current), pos(wanted)
	return c >= 0 && w >= 0 && c >= w
}

// resolvePeriod defaults to the period that ended most recently in the
// business timezone.
func (j *ClosureSweepJob) resolvePeriod(payload PeriodPayload) (time.Time, shared.PeriodType, error) {
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
	lastOfPrevious := shared.PeriodReference(now).AddDate(0, 0, -1)
	return shared.PeriodReference(lastOfPrevious), shared.PeriodTypeFor(lastOfPrevious), nil
}

func (j *ClosureSweepJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *ClosureSweepJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskClosureSweep))
	}
	return slog.Default().With(slog.String("job", TaskClosureSweep))
}

func (j *ClosureSweepJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ClosureSweepJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
