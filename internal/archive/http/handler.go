package archivehttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/studioledger/studioledger/internal/archive"
	"github.com/studioledger/studioledger/internal/backup"
	"github.com/studioledger/studioledger/internal/platform/httpx"
	"github.com/studioledger/studioledger/internal/shared"
)

const dateLayout = "2006-01-02"

type archiveService interface {
	ArchiveAndReset(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) (archive.Result, error)
	History(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) ([]archive.Record, error)
}

type snapshotService interface {
	CreateSnapshot(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) (uuid.UUID, error)
	VerifySnapshot(ctx context.Context, id uuid.UUID) (bool, error)
	ListSnapshots(ctx context.Context, modelID uuid.UUID) ([]backup.Snapshot, error)
}

// Handler exposes archive runs, archived history, and snapshots.
type Handler struct {
	logger    *slog.Logger
	archives  archiveService
	snapshots snapshotService
	validate  *validator.Validate
}

// NewHandler constructs an archive HTTP handler.
func NewHandler(logger *slog.Logger, archives archiveService, snapshots snapshotService) *Handler {
	return &Handler{
		logger:    logger,
		archives:  archives,
		snapshots: snapshots,
		validate:  validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/closure/archive", h.archiveAndReset)
	r.Post("/closure/snapshot", h.createSnapshot)
	r.Get("/history", h.history)
	r.Get("/snapshots", h.listSnapshots)
	r.Get("/snapshots/{id}/verify", h.verifySnapshot)
}

type periodRequest struct {
	PeriodDate string `json:"period_date" validate:"required,datetime=2006-01-02"`
	PeriodType string `json:"period_type" validate:"required,oneof=1-15 16-31"`
	ModelID    string `json:"model_id" validate:"required,uuid4"`
}

func (h *Handler) decodePeriodRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, time.Time, shared.PeriodType, bool) {
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return uuid.Nil, time.Time{}, "", false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return uuid.Nil, time.Time{}, "", false
	}
	periodDate, _ := time.Parse(dateLayout, req.PeriodDate)
	periodType, _ := shared.ParsePeriodType(req.PeriodType)
	modelID, err := uuid.Parse(req.ModelID)
	if err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return uuid.Nil, time.Time{}, "", false
	}
	return modelID, periodDate, periodType, true
}

func (h *Handler) archiveAndReset(w http.ResponseWriter, r *http.Request) {
	modelID, periodDate, periodType, ok := h.decodePeriodRequest(w, r)
	if !ok {
		return
	}
	res, err := h.archives.ArchiveAndReset(r.Context(), modelID, periodDate, periodType)
	if err != nil {
		h.logger.Error("archive and reset",
			slog.String("model_id", modelID.String()),
			slog.Any("error", err),
		)
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, map[string]any{
		"archived": res.Archived,
		"deleted":  res.Deleted,
	})
}

func (h *Handler) createSnapshot(w http.ResponseWriter, r *http.Request) {
	modelID, periodDate, periodType, ok := h.decodePeriodRequest(w, r)
	if !ok {
		return
	}
	id, err := h.snapshots.CreateSnapshot(r.Context(), modelID, periodDate, periodType)
	if err != nil {
		h.logger.Error("create snapshot",
			slog.String("model_id", modelID.String()),
			slog.Any("error", err),
		)
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, map[string]any{"snapshot_id": id})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	modelID, err := uuid.Parse(r.URL.Query().Get("model_id"))
	if err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return
	}
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
	records, err := h.archives.History(r.Context(), modelID, periodDate, periodType)
	if err != nil {
		h.logger.Error("list history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if records == nil {
		records = []archive.Record{}
	}
	httpx.Success(w, map[string]any{"records": records})
}

type snapshotSummary struct {
	ID         uuid.UUID `json:"id"`
	PeriodDate string    `json:"period_date"`
	PeriodType string    `json:"period_type"`
	Checksum   string    `json:"checksum"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	modelID, err := uuid.Parse(r.URL.Query().Get("model_id"))
	if err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return
	}
	snaps, err := h.snapshots.ListSnapshots(r.Context(), modelID)
	if err != nil {
		h.logger.Error("list snapshots", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]snapshotSummary, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapshotSummary{
			ID:         s.ID,
			PeriodDate: s.PeriodDate.Format(dateLayout),
			PeriodType: string(s.PeriodType),
			Checksum:   s.Checksum,
			CreatedAt:  s.CreatedAt,
		})
	}
	httpx.Success(w, map[string]any{"snapshots": out})
}

func (h *Handler) verifySnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Failure(w, http.StatusBadRequest, err)
		return
	}
	ok, err := h.snapshots.VerifySnapshot(r.Context(), id)
	if err != nil {
		h.logger.Error("verify snapshot", slog.String("snapshot_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, map[string]any{"valid": ok})
}
