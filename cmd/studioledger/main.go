package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/studioledger/studioledger/internal/app"
	"github.com/studioledger/studioledger/internal/archive"
	archivehttp "github.com/studioledger/studioledger/internal/archive/http"
	"github.com/studioledger/studioledger/internal/backup"
	"github.com/studioledger/studioledger/internal/catalog"
	"github.com/studioledger/studioledger/internal/closure"
	closurehttp "github.com/studioledger/studioledger/internal/closure/http"
	"github.com/studioledger/studioledger/internal/earnings"
	"github.com/studioledger/studioledger/internal/freeze"
	freezehttp "github.com/studioledger/studioledger/internal/freeze/http"
	"github.com/studioledger/studioledger/internal/observability"
	"github.com/studioledger/studioledger/internal/platform/cache"
	"github.com/studioledger/studioledger/internal/platform/db"
	"github.com/studioledger/studioledger/internal/rates"
	"github.com/studioledger/studioledger/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, rates cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	metrics.Registerer().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auditLog := shared.NewAuditLogger(pool)
	guard := shared.NewRunGuard(pool)

	var ratesCache *rates.Cache
	if redisClient != nil {
		ratesCache = rates.NewCache(redisClient, cfg.RatesCacheTTL)
	}
	resolver := rates.NewResolver(rates.NewRepository(pool), ratesCache, rates.Defaults{
		USDCOP:          cfg.DefaultRateUSDCOP,
		EURUSD:          cfg.DefaultRateEURUSD,
		GBPUSD:          cfg.DefaultRateGBPUSD,
		ModelPercentage: cfg.DefaultModelPercentage,
	})

	catalogRepo := catalog.NewRepository(pool)
	earningsRepo := earnings.NewRepository(pool)
	archiveRepo := archive.NewRepository(pool)
	safetyRepo := backup.NewSafetyRepository(pool)
	snapshotRepo := backup.NewSnapshotRepository(pool)

	freezeService := freeze.NewService(freeze.NewRepository(pool), logger, metrics)
	closureService := closure.NewService(closure.NewRepository(pool), logger, auditLog)
	backupService := backup.NewService(snapshotRepo, earningsRepo, resolver, logger, metrics)
	archiveService := archive.NewService(archive.Deps{
		Rates:     resolver,
		Platforms: catalogRepo,
		Raws:      earningsRepo,
		Archive:   archiveRepo,
		Safety:    safetyRepo,
		Guard:     guard,
		Logger:    logger,
		Metrics:   metrics,
		Audit:     auditLog,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		Pool:           pool,
		FreezeHandler:  freezehttp.NewHandler(logger, freezeService),
		ClosureHandler: closurehttp.NewHandler(logger, closureService),
		ArchiveHandler: archivehttp.NewHandler(logger, archiveService, backupService),
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
