package e2e

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/studioledger/studioledger/internal/archive"
	"github.com/studioledger/studioledger/internal/closure"
	"github.com/studioledger/studioledger/internal/shared"
	_ "github.com/studioledger/studioledger/internal/testing/guard"
	"github.com/studioledger/studioledger/jobs"
)

// memStatusStore keeps closure status rows in memory with the same
// transactional contract the Postgres repository provides.
type memStatusStore struct {
	mu   sync.Mutex
	recs map[string]closure.StatusRecord
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{recs: map[string]closure.StatusRecord{}}
}

func statusKey(periodDate time.Time, periodType shared.PeriodType) string {
	return periodDate.Format("2006-01-02") + "|" + string(periodType)
}

func (m *memStatusStore) InTx(ctx context.Context, fn func(context.Context, closure.TxStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, (*memTxStore)(m))
}

func (m *memStatusStore) Get(_ context.Context, periodDate time.Time, periodType shared.PeriodType) (closure.StatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[statusKey(periodDate, periodType)]
	if !ok {
		return closure.StatusRecord{}, closure.ErrStatusNotFound
	}
	return rec, nil
}

type memTxStore memStatusStore

func (m *memTxStore) GetForUpdate(_ context.Context, periodDate time.Time, periodType shared.PeriodType) (closure.StatusRecord, error) {
	rec, ok := m.recs[statusKey(periodDate, periodType)]
	if !ok {
		return closure.StatusRecord{}, closure.ErrStatusNotFound
	}
	return rec, nil
}

func (m *memTxStore) Insert(_ context.Context, rec closure.StatusRecord) error {
	m.recs[statusKey(rec.PeriodDate, rec.PeriodType)] = rec
	return nil
}

func (m *memTxStore) Update(_ context.Context, rec closure.StatusRecord) error {
	m.recs[statusKey(rec.PeriodDate, rec.PeriodType)] = rec
	return nil
}

type recordingArchives struct {
	mu    sync.Mutex
	calls []uuid.UUID
	fail  bool
}

func (r *recordingArchives) ArchiveAndReset(_ context.Context, modelID uuid.UUID, _ time.Time, _ shared.PeriodType) (archive.Result, error) {
	if r.fail {
		return archive.Result{}, errors.New("archived row count mismatch")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, modelID)
	return archive.Result{Archived: 3, Deleted: 4}, nil
}

type recordingSnapshots struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingSnapshots) CreateSnapshot(context.Context, uuid.UUID, time.Time, shared.PeriodType) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return uuid.New(), nil
}

type fixedModels struct {
	ids []uuid.UUID
}

func (f *fixedModels) ActiveModelIDs(context.Context, time.Time, time.Time) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), f.ids...), nil
}

func sweepOnce(t *testing.T, job *jobs.ClosureSweepJob) error {
	t.Helper()
	task, err := jobs.NewClosureSweepTask(jobs.PeriodPayload{PeriodDate: "2025-02-16", PeriodType: "16-31"})
	require.NoError(t, err)
	return job.Handle(context.Background(), task)
}

func TestClosureLifecycleEndToEnd(t *testing.T) {
	store := newMemStatusStore()
	statusService := closure.NewService(store, nil, nil)
	archives := &recordingArchives{}
	snapshots := &recordingSnapshots{}
	models := &fixedModels{ids: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}}

	job := jobs.NewClosureSweepJob(statusService, archives, snapshots, models, nil, time.UTC, 2, nil, nil)
	require.NoError(t, sweepOnce(t, job))

	rec, err := statusService.GetStatus(context.Background(), mustDate(t, "2025-02-16"), shared.PeriodSecondHalf)
	require.NoError(t, err)
	require.Equal(t, closure.StatusCompleted, rec.Status)
	require.Len(t, archives.calls, 3)
	require.Equal(t, 3, snapshots.calls)

	// Re-running the sweep against a completed period changes nothing.
	require.NoError(t, sweepOnce(t, job))
	require.Len(t, archives.calls, 3)
	require.Equal(t, 3, snapshots.calls)
}

func TestClosureLifecycleFailureAndManualRetry(t *testing.T) {
	store := newMemStatusStore()
	statusService := closure.NewService(store, nil, nil)
	archives := &recordingArchives{fail: true}
	snapshots := &recordingSnapshots{}
	models := &fixedModels{ids: []uuid.UUID{uuid.New()}}

	job := jobs.NewClosureSweepJob(statusService, archives, snapshots, models, nil, time.UTC, 1, nil, nil)
	require.Error(t, sweepOnce(t, job))

	rec, err := statusService.GetStatus(context.Background(), mustDate(t, "2025-02-16"), shared.PeriodSecondHalf)
	require.NoError(t, err)
	require.Equal(t, closure.StatusFailed, rec.Status)
	require.Equal(t, "archive", rec.Metadata["stage"])

	// A sweep against a failed period waits for the operator.
	require.NoError(t, sweepOnce(t, job))
	rec, err = statusService.GetStatus(context.Background(), mustDate(t, "2025-02-16"), shared.PeriodSecondHalf)
	require.NoError(t, err)
	require.Equal(t, closure.StatusFailed, rec.Status)

	// Manual reset to pending reopens the period, and a fixed pipeline
	// closes it.
	_, err = statusService.UpdateStatus(context.Background(), mustDate(t, "2025-02-16"), shared.PeriodSecondHalf, closure.StatusPending, map[string]any{"actor": "ops"})
	require.NoError(t, err)

	archives.fail = false
	require.NoError(t, sweepOnce(t, job))
	rec, err = statusService.GetStatus(context.Background(), mustDate(t, "2025-02-16"), shared.PeriodSecondHalf)
	require.NoError(t, err)
	require.Equal(t, closure.StatusCompleted, rec.Status)
}

func mustDate(t *testing.T, d string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", d)
	require.NoError(t, err)
	return parsed
}
