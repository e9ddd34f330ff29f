package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/aegis-rbac/aegis/internal/app"
	"github.com/aegis-rbac/aegis/internal/authz"
	"github.com/aegis-rbac/aegis/internal/observability"
	"github.com/aegis-rbac/aegis/internal/platform/cache"
	"github.com/aegis-rbac/aegis/internal/platform/db"
	"github.com/aegis-rbac/aegis/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var closureCache *authz.ClosureCache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, closure cache disabled", slog.Any("error", err))
	} else {
		closureCache = authz.NewClosureCache(redisClient, cfg.ClosureCacheTTL)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	store := authz.NewPGStore(pool)
	manager := authz.NewManager(store, authz.NewRegistry(), closureCache, logger)
	metrics := observability.NewMetrics()

	scanTask, err := jobs.NewIntegrityScanTask(jobs.IntegrityScanPayload{RequestedBy: "cron"})
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewCacheWarmupTask(jobs.CacheWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:     asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:        logger,
		IntegrityScan: jobs.NewIntegrityScanJob(manager, logger, metrics),
		CacheWarmup:   jobs.NewCacheWarmupJob(manager, store, logger, metrics),
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: scanTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
			{Spec: "*/30 * * * *", Task: warmupTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}
