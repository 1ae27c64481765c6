package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/studioledger/studioledger/internal/jobs"
	"github.com/studioledger/studioledger/internal/shared"
)

// ArchiveModelJob archives a single model's period outside a full sweep,
// the retry path when one model failed while the rest of the close went
// through.
type ArchiveModelJob struct {
	Archives  ArchiveService
	Snapshots SnapshotService
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewArchiveModelJob constructs the handler.
func NewArchiveModelJob(archives ArchiveService, snapshots SnapshotService, logger *slog.Logger, metrics *jobmetrics.Metrics) *ArchiveModelJob {
	return &ArchiveModelJob{
		Archives:  archives,
		Snapshots: snapshots,
		Logger:    logger,
		Metrics:   metrics,
	}
}

// Handle snapshots then archives one model period.
func (j *ArchiveModelJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Archives == nil || j.Snapshots == nil {
		return errors.New("archive model: dependencies not configured")
	}
	var payload ArchiveModelPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskArchiveModel)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	modelID, err := uuid.Parse(payload.ModelID)
	if err != nil {
		resultErr = err
		return asynq.SkipRetry
	}
	periodDate, err := time.Parse(dateLayout, payload.PeriodDate)
	if err != nil {
		resultErr = err
		return asynq.SkipRetry
	}
	periodType, err := shared.ParsePeriodType(payload.PeriodType)
	if err != nil {
		resultErr = err
		return asynq.SkipRetry
	}

	log := j.log().With(
		slog.String("model_id", modelID.String()),
		slog.Time("period_date", periodDate),
		slog.String("period_type", string(periodType)),
	)

	if _, err := j.Snapshots.CreateSnapshot(ctx, modelID, periodDate, periodType); err != nil {
		resultErr = err
		log.Error("create snapshot", slog.Any("error", err))
		return resultErr
	}
	res, err := j.Archives.ArchiveAndReset(ctx, modelID, periodDate, periodType)
	if err != nil {
		if errors.Is(err, shared.ErrRunInFlight) {
			log.Warn("run already in flight, skipping")
			return nil
		}
		resultErr = err
		log.Error("archive and reset", slog.Any("error", err))
		return resultErr
	}

	log.Info("model archived",
		slog.Int("archived", res.Archived),
		slog.Int("deleted", res.Deleted),
	)
	return resultErr
}

func (j *ArchiveModelJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *ArchiveModelJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskArchiveModel))
	}
	return slog.Default().With(slog.String("job", TaskArchiveModel))
}
