package closure

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/studioledger/studioledger/internal/shared"
)

// TxStore is the transactional view of the status repository.
type TxStore interface {
	GetForUpdate(ctx context.Context, periodDate time.Time, periodType shared.PeriodType) (StatusRecord, error)
	Insert(ctx context.Context, rec StatusRecord) error
	Update(ctx context.Context, rec StatusRecord) error
}

type store interface {
	InTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	Get(ctx context.Context, periodDate time.Time, periodType shared.PeriodType) (StatusRecord, error)
}

type auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service guards the closure state machine. It never decides when to
// advance; external triggers (scheduler, operators) call UpdateStatus and
// the service refuses anything outside the adjacency list.
type Service struct {
	store  store
	logger *slog.Logger
	audit  auditor
}

// NewService constructs a closure service.
func NewService(store store, logger *slog.Logger, audit auditor) *Service {
	return &Service{store: store, logger: logger, audit: audit}
}

// GetStatus returns the status row for a period.
func (s *Service) GetStatus(ctx context.Context, periodDate time.Time, periodType shared.PeriodType) (StatusRecord, error) {
	if !periodType.Valid() {
		return StatusRecord{}, shared.ErrInvalidPeriodType
	}
	return s.store.Get(ctx, shared.PeriodReference(periodDate), periodType)
}

// UpdateStatus upserts the status row after validating the transition
// against the current state. A missing row counts as pending; re-recording
// the current status only refreshes metadata and the timestamp.
func (s *Service) UpdateStatus(ctx context.Context, periodDate time.Time, periodType shared.PeriodType, next Status, metadata map[string]any) (StatusRecord, error) {
	if !periodType.Valid() {
		return StatusRecord{}, shared.ErrInvalidPeriodType
	}
	if !next.Valid() {
		return StatusRecord{}, ErrUnknownStatus
	}
	reference := shared.PeriodReference(periodDate)

	var out StatusRecord
	err := s.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		current, err := tx.GetForUpdate(ctx, reference, periodType)
		if errors.Is(err, ErrStatusNotFound) {
			if next != StatusPending {
				if err := ValidateTransition(StatusPending, next); err != nil {
					return err
				}
			}
			out = StatusRecord{
				PeriodDate: reference,
				PeriodType: periodType,
				Status:     next,
				Metadata:   metadata,
			}
			return tx.Insert(ctx, out)
		}
		if err != nil {
			return err
		}
		if current.Status != next {
			if err := ValidateTransition(current.Status, next); err != nil {
				return err
			}
		}
		out = StatusRecord{
			PeriodDate: reference,
			PeriodType: periodType,
			Status:     next,
			Metadata:   metadata,
		}
		return tx.Update(ctx, out)
	})
	if err != nil {
		return StatusRecord{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "closure.status",
			Entity:   "closure_status",
			EntityID: reference.Format("2006-01-02") + ":" + string(periodType),
			Meta:     map[string]any{"status": string(next)},
		})
	}
	if s.logger != nil {
		s.logger.Info("closure status updated",
			slog.Time("period_date", reference),
			slog.String("period_type", string(periodType)),
			slog.String("status", string(next)),
		)
	}
	return out, nil
}
