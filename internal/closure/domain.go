package closure

import (
	"errors"
	"fmt"
	"time"

	"github.com/studioledger/studioledger/internal/shared"
)

// Status enumerates the closure lifecycle for a (period, period-type) pair.
type Status string

const (
	StatusPending            Status = "pending"
	StatusEarlyFreezing      Status = "early_freezing"
	StatusClosingCalculators Status = "closing_calculators"
	StatusWaitingSummary     Status = "waiting_summary"
	StatusClosingSummary     Status = "closing_summary"
	StatusArchiving          Status = "archiving"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
)

// transitions is the strict adjacency list. Anything not listed is
// rejected without mutating the status row, so no run can skip archiving
// or jump straight to completed. failed -> pending is the manual retry
// path.
var transitions = map[Status][]Status{
	StatusPending:            {StatusEarlyFreezing, StatusClosingCalculators, StatusFailed},
	StatusEarlyFreezing:      {StatusClosingCalculators, StatusFailed},
	StatusClosingCalculators: {StatusWaitingSummary, StatusFailed},
	StatusWaitingSummary:     {StatusClosingSummary, StatusFailed},
	StatusClosingSummary:     {StatusArchiving, StatusFailed},
	StatusArchiving:          {StatusCompleted, StatusFailed},
	StatusCompleted:          {},
	StatusFailed:             {StatusPending},
}

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is an allowed transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition indicates a status change outside the adjacency
// list. Callers must treat this as an ordering bug, not a transient error.
var ErrInvalidTransition = errors.New("closure: invalid status transition")

// ErrUnknownStatus indicates a status value outside the lifecycle.
var ErrUnknownStatus = errors.New("closure: unknown status")

// ErrStatusNotFound indicates no status row exists for the period yet.
var ErrStatusNotFound = errors.New("closure: status not found")

// StatusRecord is the authoritative state for one (period_date,
// period_type) pair.
type StatusRecord struct {
	PeriodDate time.Time
	PeriodType shared.PeriodType
	Status     Status
	Metadata   map[string]any
	UpdatedAt  time.Time
}

// ValidateTransition checks from -> to, wrapping the offending pair into
// the error message.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
