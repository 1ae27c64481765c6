package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/studioledger/studioledger/internal/app"
	"github.com/studioledger/studioledger/internal/archive"
	"github.com/studioledger/studioledger/internal/backup"
	"github.com/studioledger/studioledger/internal/catalog"
	"github.com/studioledger/studioledger/internal/closure"
	"github.com/studioledger/studioledger/internal/earnings"
	"github.com/studioledger/studioledger/internal/freeze"
	jobmetrics "github.com/studioledger/studioledger/internal/jobs"
	"github.com/studioledger/studioledger/internal/platform/cache"
	"github.com/studioledger/studioledger/internal/platform/db"
	"github.com/studioledger/studioledger/internal/rates"
	"github.com/studioledger/studioledger/internal/shared"
	"github.com/studioledger/studioledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

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

	loc, err := time.LoadLocation(cfg.FreezeTimezone)
	if err != nil {
		logger.Warn("invalid freeze timezone, falling back to UTC",
			slog.String("timezone", cfg.FreezeTimezone),
			slog.Any("error", err),
		)
		loc = time.UTC
	}

	auditLog := shared.NewAuditLogger(pool)
	guard := shared.NewRunGuard(pool)
	if removed, err := guard.Cleanup(ctx, 2*time.Hour); err != nil {
		logger.Warn("startup run guard cleanup", slog.Any("error", err))
	} else if removed > 0 {
		logger.Warn("dropped stale run markers left by a crashed worker",
			slog.Int64("removed", removed),
		)
	}
	metrics := jobmetrics.NewMetrics(nil)

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

	earningsRepo := earnings.NewRepository(pool)
	freezeService := freeze.NewService(freeze.NewRepository(pool), logger, nil)
	closureService := closure.NewService(closure.NewRepository(pool), logger, auditLog)
	backupService := backup.NewService(backup.NewSnapshotRepository(pool), earningsRepo, resolver, logger, nil)
	archiveService := archive.NewService(archive.Deps{
		Rates:     resolver,
		Platforms: catalog.NewRepository(pool),
		Raws:      earningsRepo,
		Archive:   archive.NewRepository(pool),
		Safety:    backup.NewSafetyRepository(pool),
		Guard:     guard,
		Logger:    logger,
		Audit:     auditLog,
	})

	earlyFreezeJob := jobs.NewEarlyFreezeJob(freezeService, earningsRepo, cfg.EarlyFreezePlatforms, loc, cfg.SweepConcurrency, logger, metrics)
	sweepJob := jobs.NewClosureSweepJob(closureService, archiveService, backupService, earningsRepo, guard, loc, cfg.SweepConcurrency, logger, metrics)
	archiveModelJob := jobs.NewArchiveModelJob(archiveService, backupService, logger, metrics)

	earlyFreezeTask, err := jobs.NewEarlyFreezeTask(jobs.PeriodPayload{})
	if err != nil {
		logger.Error("build early freeze task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewClosureSweepTask(jobs.PeriodPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskEarlyFreeze, Handler: earlyFreezeJob.Handle},
			{Type: jobs.TaskClosureSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskArchiveModel, Handler: archiveModelJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			// 22:00 business time on the 15th and the last day of the
			// month: freeze superfoon before its cycle rolls over.
			{Spec: "0 22 15,28,29,30,31 * *", Task: earlyFreezeTask},
			// 06:00 business time on the 1st and 16th: close the period
			// that ended at midnight.
			{Spec: "0 6 1,16 * *", Task: sweepTask},
		},
		CronLocation: loc,
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting",
		slog.String("redis", cfg.RedisAddr),
		slog.String("timezone", loc.String()),
	)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
