package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	archivehttp "github.com/studioledger/studioledger/internal/archive/http"
	closurehttp "github.com/studioledger/studioledger/internal/closure/http"
	freezehttp "github.com/studioledger/studioledger/internal/freeze/http"
	"github.com/studioledger/studioledger/internal/observability"
)

// RouterParams aggregates the handlers mounted on the HTTP surface.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Pool    *pgxpool.Pool

	FreezeHandler  *freezehttp.Handler
	ClosureHandler *closurehttp.Handler
	ArchiveHandler *archivehttp.Handler
	JobsHandler    interface{ MountRoutes(chi.Router) }
}

// NewRouter assembles the chi router: middleware stack, liveness probes,
// metrics, and the versioned closure API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.Config != nil {
		r.Use(chimw.Timeout(params.Config.AppRequestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if params.Pool != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := params.Pool.Ping(ctx); err != nil {
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.FreezeHandler != nil {
			params.FreezeHandler.MountRoutes(r)
		}
		if params.ClosureHandler != nil {
			params.ClosureHandler.MountRoutes(r)
		}
		if params.ArchiveHandler != nil {
			params.ArchiveHandler.MountRoutes(r)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				params.JobsHandler.MountRoutes(r)
			})
		}
	})

	return r
}
