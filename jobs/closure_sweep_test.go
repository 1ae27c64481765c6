package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/studioledger/studioledger/internal/archive"
	"github.com/studioledger/studioledger/internal/closure"
	"github.com/studioledger/studioledger/internal/shared"
)

type stubStatus struct {
	current     closure.Status
	transitions []closure.Status
}

func (s *stubStatus) GetStatus(_ context.Context, periodDate time.Time, periodType shared.PeriodType) (closure.StatusRecord, error) {
	if s.current == "" {
		return closure.StatusRecord{}, closure.ErrStatusNotFound
	}
	return closure.StatusRecord{PeriodDate: periodDate, PeriodType: periodType, Status: s.current}, nil
}

func (s *stubStatus) UpdateStatus(_ context.Context, periodDate time.Time, periodType shared.PeriodType, next closure.Status, _ map[string]any) (closure.StatusRecord, error) {
	from := s.current
	if from == "" {
		from = closure.StatusPending
	}
	if err := closure.ValidateTransition(from, next); err != nil {
		return closure.StatusRecord{}, err
	}
	s.current = next
	s.transitions = append(s.transitions, next)
	return closure.StatusRecord{PeriodDate: periodDate, PeriodType: periodType, Status: next}, nil
}

type stubArchives struct {
	calls []uuid.UUID
	err   error
}

func (s *stubArchives) ArchiveAndReset(_ context.Context, modelID uuid.UUID, _ time.Time, _ shared.PeriodType) (archive.Result, error) {
	if s.err != nil {
		return archive.Result{}, s.err
	}
	s.calls = append(s.calls, modelID)
	return archive.Result{Archived: 2, Deleted: 3}, nil
}

type stubSnapshots struct {
	calls int
	err   error
}

func (s *stubSnapshots) CreateSnapshot(context.Context, uuid.UUID, time.Time, shared.PeriodType) (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	s.calls++
	return uuid.New(), nil
}

type stubModels struct {
	ids []uuid.UUID
}

func (s *stubModels) ActiveModelIDs(context.Context, time.Time, time.Time) ([]uuid.UUID, error) {
	return s.ids, nil
}

func sweepTask(t *testing.T, payload PeriodPayload) *asynq.Task {
	t.Helper()
	task, err := NewClosureSweepTask(payload)
	require.NoError(t, err)
	return task
}

func TestClosureSweepWalksFullLifecycle(t *testing.T) {
	status := &stubStatus{}
	archives := &stubArchives{}
	snapshots := &stubSnapshots{}
	models := &stubModels{ids: []uuid.UUID{uuid.New(), uuid.New()}}

	job := NewClosureSweepJob(status, archives, snapshots, models, nil, time.UTC, 2, nil, nil)
	err := job.Handle(context.Background(), sweepTask(t, PeriodPayload{PeriodDate: "2025-03-01", PeriodType: "1-15"}))
	require.NoError(t, err)

	require.Equal(t, []closure.Status{
		closure.StatusClosingCalculators,
		closure.StatusWaitingSummary,
		closure.StatusClosingSummary,
		closure.StatusArchiving,
		closure.StatusCompleted,
	}, status.transitions)
	require.Equal(t, 2, snapshots.calls, "every model gets a snapshot")
	require.Len(t, archives.calls, 2, "every model gets archived")
}

func TestClosureSweepFailureMarksPeriodFailed(t *testing.T) {
	status := &stubStatus{}
	archives := &stubArchives{err: errors.New("verification mismatch")}
	snapshots := &stubSnapshots{}
	models := &stubModels{ids: []uuid.UUID{uuid.New()}}

	job := NewClosureSweepJob(status, archives, snapshots, models, nil, time.UTC, 1, nil, nil)
	err := job.Handle(context.Background(), sweepTask(t, PeriodPayload{PeriodDate: "2025-03-01", PeriodType: "1-15"}))
	require.Error(t, err)
	require.Equal(t, closure.StatusFailed, status.current)
}

func TestClosureSweepSkipsCompletedPeriod(t *testing.T) {
	status := &stubStatus{current: closure.StatusCompleted}
	archives := &stubArchives{}
	snapshots := &stubSnapshots{}
	models := &stubModels{ids: []uuid.UUID{uuid.New()}}

	job := NewClosureSweepJob(status, archives, snapshots, models, nil, time.UTC, 1, nil, nil)
	err := job.Handle(context.Background(), sweepTask(t, PeriodPayload{PeriodDate: "2025-03-01", PeriodType: "1-15"}))
	require.NoError(t, err)
	require.Empty(t, status.transitions)
	require.Zero(t, snapshots.calls)
	require.Empty(t, archives.calls)
}

func TestClosureSweepSkipsFailedPeriodUntilReset(t *testing.T) {
	status := &stubStatus{current: closure.StatusFailed}
	job := NewClosureSweepJob(status, &stubArchives{}, &stubSnapshots{}, &stubModels{}, nil, time.UTC, 1, nil, nil)
	err := job.Handle(context.Background(), sweepTask(t, PeriodPayload{PeriodDate: "2025-03-01", PeriodType: "1-15"}))
	require.NoError(t, err)
	require.Empty(t, status.transitions)
}

func TestClosureSweepTreatsInFlightModelAsSkipped(t *testing.T) {
	status := &stubStatus{}
	archives := &stubArchives{err: shared.ErrRunInFlight}
	snapshots := &stubSnapshots{}
	models := &stubModels{ids: []uuid.UUID{uuid.New()}}

	job := NewClosureSweepJob(status, archives, snapshots, models, nil, time.UTC, 1, nil, nil)
	err := job.Handle(context.Background(), sweepTask(t, PeriodPayload{PeriodDate: "2025-03-01", PeriodType: "1-15"}))
	require.NoError(t, err)
	require.Equal(t, closure.StatusCompleted, status.current)
}

type stubJanitor struct {
	calls   int
	removed int64
	err     error
}

func (s *stubJanitor) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.calls++
	if olderThan <= 0 {
		return 0, errors.New("cleanup age must be positive")
	}
	return s.removed, s.err
}

func TestClosureSweepClearsStaleRunMarkers(t *testing.T) {
	status := &stubStatus{}
	janitor := &stubJanitor{removed: 1}
	models := &stubModels{ids: []uuid.UUID{uuid.New()}}

	job := NewClosureSweepJob(status, &stubArchives{}, &stubSnapshots{}, models, janitor, time.UTC, 1, nil, nil)
	err := job.Handle(context.Background(), sweepTask(t, PeriodPayload{PeriodDate: "2025-03-01", PeriodType: "1-15"}))
	require.NoError(t, err)
	require.Equal(t, 1, janitor.calls, "stale markers are cleared before the sweep runs")
	require.Equal(t, closure.StatusCompleted, status.current)
}

func TestClosureSweepCleanupFailureDoesNotBlockSweep(t *testing.T) {
	status := &stubStatus{}
	janitor := &stubJanitor{err: errors.New("connection reset")}
	models := &stubModels{ids: []uuid.UUID{uuid.New()}}

	job := NewClosureSweepJob(status, &stubArchives{}, &stubSnapshots{}, models, janitor, time.UTC, 1, nil, nil)
	err := job.Handle(context.Background(), sweepTask(t, PeriodPayload{PeriodDate: "2025-03-01", PeriodType: "1-15"}))
	require.NoError(t, err)
	require.Equal(t, 1, janitor.calls)
	require.Equal(t, closure.StatusCompleted, status.current)
}

func TestClosureSweepResolvesPreviousPeriod(t *testing.T) {
	status := &stubStatus{}
	archives := &stubArchives{}
	snapshots := &stubSnapshots{}
	models := &stubModels{}

	job := NewClosureSweepJob(status, archives, snapshots, models, nil, time.UTC, 1, nil, nil)
	// March 16th: the 1-15 period just ended.
	job.WithClock(func() time.Time {
		return time.Date(2025, 3, 16, 6, 0, 0, 0, time.UTC)
	})
	periodDate, periodType, err := job.resolvePeriod(PeriodPayload{})
	require.NoError(t, err)
	require.Equal(t, "2025-03-01", periodDate.Format("2006-01-02"))
	require.Equal(t, shared.PeriodFirstHalf, periodType)

	// March 1st: the 16-31 period of February just ended.
	job.WithClock(func() time.Time {
		return time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	})
	periodDate, periodType, err = job.resolvePeriod(PeriodPayload{})
	require.NoError(t, err)
	require.Equal(t, "2025-02-16", periodDate.Format("2006-01-02"))
	require.Equal(t, shared.PeriodSecondHalf, periodType)
}
