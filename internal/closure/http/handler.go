package closurehttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/studioledger/studioledger/internal/closure"
	"github.com/studioledger/studioledger/internal/platform/httpx"
	"github.com/studioledger/studioledger/internal/shared"
)

const dateLayout = "2006-01-02"

type closureService interface {
	GetStatus(ctx context.Context, periodDate time.Time, periodType shared.PeriodType) (closure.StatusRecord, error)
	UpdateStatus(ctx context.Context, periodDate time.Time, periodType shared.PeriodType, next closure.Status, metadata map[string]any) (closure.StatusRecord, error)
}

// Handler exposes the period-closure state machine.
type Handler struct {
	logger   *slog.Logger
	service  closureService
	validate *validator.Validate
}

// NewHandler constructs a closure HTTP handler.
func NewHandler(logger *slog.Logger, service closureService) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/closure/status", func(r chi.Router) {
		r.Get("/", h.getStatus)
		r.Post("/", h.updateStatus)
	})
}

type statusResponse struct {
	PeriodDate string         `json:"period_date"`
	PeriodType string         `json:"period_type"`
	Status     string         `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func toStatusResponse(rec closure.StatusRecord) statusResponse {
	return statusResponse{
		PeriodDate: rec.PeriodDate.Format(dateLayout),
		PeriodType: string(rec.PeriodType),
		Status:     string(rec.Status),
		Metadata:   rec.Metadata,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	periodDate, err := time.Parse(dateLayout, r.URL.Query().Get("period_date"))
	if err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return
	}
	periodType, err := shared.ParsePeriodType(r.URL.Query().Get("period_type"))
	if err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return
	}
	rec, err := h.service.GetStatus(r.Context(), periodDate, periodType)
	if err != nil {
		h.logger.Error("get closure status", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.Success(w, toStatusResponse(rec))
}

type updateStatusRequest struct {
	PeriodDate string         `json:"period_date" validate:"required,datetime=2006-01-02"`
	PeriodType string         `json:"period_type" validate:"required,oneof=1-15 16-31"`
	Status     string         `json:"status" validate:"required"`
	Metadata   map[string]any `json:"metadata"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return
	}
	periodDate, _ := time.Parse(dateLayout, req.PeriodDate)
	periodType, _ := shared.ParsePeriodType(req.PeriodType)
	rec, err := h.service.UpdateStatus(r.Context(), periodDate, periodType, closure.Status(req.Status), req.Metadata)
	if err != nil {
		h.logger.Warn("update closure status",
			slog.String("period_type", req.PeriodType),
			slog.String("status", req.Status),
			slog.Any("error", err),
		)
		h.respondError(w, err)
		return
	}
	httpx.Success(w, toStatusResponse(rec))
}

// respondError adds the state-machine errors on top of the shared
// mappings: rejected transitions are conflicts, not server faults.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, closure.ErrInvalidTransition):
		httpx.Failure(w, http.StatusConflict, err)
	case errors.Is(err, closure.ErrUnknownStatus):
		httpx.Failure(w, http.StatusBadRequest, err)
	case errors.Is(err, closure.ErrStatusNotFound):
		httpx.Failure(w, http.StatusNotFound, err)
	default:
		httpx.RespondError(w, err)
	}
}
