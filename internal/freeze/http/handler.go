package freezehttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/studioledger/studioledger/internal/platform/httpx"
)

const dateLayout = "2006-01-02"

type freezeService interface {
	FreezePlatformsForModel(ctx context.Context, periodDate time.Time, modelID uuid.UUID, platformIDs []string) error
	IsPlatformFrozen(ctx context.Context, periodDate time.Time, modelID uuid.UUID, platformID string) (bool, error)
	GetFrozenPlatformsForModel(ctx context.Context, periodDate time.Time, modelID uuid.UUID) ([]string, error)
}

// Handler exposes the early-freeze manager to UI collaborators.
type Handler struct {
	logger   *slog.Logger
	service  freezeService
	validate *validator.Validate
}

// NewHandler constructs a freeze HTTP handler.
func NewHandler(logger *slog.Logger, service freezeService) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/freeze", func(r chi.Router) {
		r.Post("/", h.freezePlatforms)
		r.Get("/status", h.platformStatus)
		r.Get("/platforms", h.frozenPlatforms)
	})
}

type freezeRequest struct {
	PeriodDate  string   `json:"period_date" validate:"required,datetime=2006-01-02"`
	ModelID     string   `json:"model_id" validate:"required,uuid4"`
	PlatformIDs []string `json:"platform_ids" validate:"required,min=1,dive,required"`
}

func (h *Handler) freezePlatforms(w http.ResponseWriter, r *http.Request) {
	var req freezeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return
	}
	periodDate, _ := time.Parse(dateLayout, req.PeriodDate)
	modelID, err := uuid.Parse(req.ModelID)
	if err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return
	}
	if err := h.service.FreezePlatformsForModel(r.Context(), periodDate, modelID, req.PlatformIDs); err != nil {
		h.logger.Error("freeze platforms", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, nil)
}

func (h *Handler) platformStatus(w http.ResponseWriter, r *http.Request) {
	periodDate, modelID, ok := h.parseModelPeriod(w, r)
	if !ok {
		return
	}
	platformID := r.URL.Query().Get("platform_id")
	if platformID == "" {
		httpx.Failure(w, http.StatusBadRequest, httpx.ErrValidation)
		return
	}
	frozen, err := h.service.IsPlatformFrozen(r.Context(), periodDate, modelID, platformID)
	if err != nil {
		h.logger.Error("platform freeze status", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, map[string]any{"frozen": frozen})
}

func (h *Handler) frozenPlatforms(w http.ResponseWriter, r *http.Request) {
	periodDate, modelID, ok := h.parseModelPeriod(w, r)
	if !ok {
		return
	}
	ids, err := h.service.GetFrozenPlatformsForModel(r.Context(), periodDate, modelID)
	if err != nil {
		h.logger.Error("list frozen platforms", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httpx.Success(w, map[string]any{"platform_ids": ids})
}

func (h *Handler) parseModelPeriod(w http.ResponseWriter, r *http.Request) (time.Time, uuid.UUID, bool) {
	periodDate, err := time.Parse(dateLayout, r.URL.Query().Get("period_date"))
	if err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return time.Time{}, uuid.Nil, false
	}
	modelID, err := uuid.Parse(r.URL.Query().Get("model_id"))
	if err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return time.Time{}, uuid.Nil, false
	}
	return periodDate, modelID, true
}
