package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueClosure carries the period-closure pipeline tasks.
	QueueClosure = "closure"

	// TaskEarlyFreeze schedules the early-freeze sweep for the upcoming
	// period boundary.
	TaskEarlyFreeze = "closure:early_freeze"
	// TaskClosureSweep drives the full close for one ended period across
	// all active models.
	TaskClosureSweep = "closure:sweep"
	// TaskArchiveModel archives a single model's period, used for manual
	// retries after a failed sweep.
	TaskArchiveModel = "closure:archive_model"
)

// PeriodPayload scopes a closure task to one half-month period. An empty
// PeriodDate means "the period that just ended", resolved at run time.
type PeriodPayload struct {
	PeriodDate string `json:"period_date,omitempty"`
	PeriodType string `json:"period_type,omitempty"`
}

// ArchiveModelPayload scopes an archive task to one model and period.
type ArchiveModelPayload struct {
	ModelID    string `json:"model_id"`
	PeriodDate string `json:"period_date"`
	PeriodType string `json:"period_type"`
}

// NewEarlyFreezeTask constructs the early-freeze sweep task.
func NewEarlyFreezeTask(payload PeriodPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEarlyFreeze, body,
		asynq.Queue(QueueClosure),
		asynq.MaxRetry(3),
	), nil
}

// NewClosureSweepTask constructs the closure sweep task. Uniqueness keeps a
// cron overlap from starting the same sweep twice.
func NewClosureSweepTask(payload PeriodPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskClosureSweep, body,
		asynq.Queue(QueueClosure),
		asynq.MaxRetry(0),
		asynq.Unique(6*time.Hour),
	), nil
}

// NewArchiveModelTask constructs a single-model archive task.
func NewArchiveModelTask(payload ArchiveModelPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskArchiveModel, body,
		asynq.Queue(QueueClosure),
		asynq.MaxRetry(2),
		asynq.Unique(time.Hour),
	), nil
}
