package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP surface and the closure
// pipeline.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	closureRuns      *prometheus.CounterVec
	archivedRows     prometheus.Counter
	deletedRows      prometheus.Counter
	verifyFailures   prometheus.Counter
	frozenPlatforms  prometheus.Counter
	snapshotsWritten prometheus.Counter
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studioledger_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studioledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	closureRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "studioledger_closure_runs_total",
		Help: "Archive-and-reset runs by outcome.",
	}, []string{"outcome"})
	archivedRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studioledger_archived_rows_total",
		Help: "Rows written to the earnings history table.",
	})
	deletedRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studioledger_deleted_rows_total",
		Help: "Raw earning rows deleted after verified archival.",
	})
	verifyFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studioledger_verification_failures_total",
		Help: "Archive or backup verification failures that aborted a run.",
	})
	frozenPlatforms := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studioledger_frozen_platforms_total",
		Help: "Platform freeze marks written by the early-freeze manager.",
	})
	snapshots := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studioledger_snapshots_written_total",
		Help: "Backup snapshots persisted.",
	})
	registry.MustRegister(requests, duration, closureRuns, archivedRows, deletedRows, verifyFailures, frozenPlatforms, snapshots)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		closureRuns:      closureRuns,
		archivedRows:     archivedRows,
		deletedRows:      deletedRows,
		verifyFailures:   verifyFailures,
		frozenPlatforms:  frozenPlatforms,
		snapshotsWritten: snapshots,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ClosureRun counts a finished archive-and-reset run by outcome.
func (m *Metrics) ClosureRun(outcome string) {
	if m == nil {
		return
	}
	m.closureRuns.WithLabelValues(outcome).Inc()
}

// ArchivedRows adds to the archived row counter.
func (m *Metrics) ArchivedRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.archivedRows.Add(float64(n))
}

// DeletedRows adds to the deleted row counter.
func (m *Metrics) DeletedRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deletedRows.Add(float64(n))
}

// VerificationFailure counts an aborted run.
func (m *Metrics) VerificationFailure() {
	if m == nil {
		return
	}
	m.verifyFailures.Inc()
}

// FrozenPlatforms adds to the freeze-mark counter.
func (m *Metrics) FrozenPlatforms(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.frozenPlatforms.Add(float64(n))
}

// SnapshotWritten counts a persisted snapshot.
func (m *Metrics) SnapshotWritten() {
	if m == nil {
		return
	}
	m.snapshotsWritten.Inc()
}

// Registerer exposes the registry for registering custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
