package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aegis-rbac/aegis/internal/app"
	"github.com/aegis-rbac/aegis/internal/assignments"
	"github.com/aegis-rbac/aegis/internal/auth"
	"github.com/aegis-rbac/aegis/internal/authz"
	"github.com/aegis-rbac/aegis/internal/items"
	"github.com/aegis-rbac/aegis/internal/observability"
	"github.com/aegis-rbac/aegis/internal/platform/cache"
	"github.com/aegis-rbac/aegis/internal/platform/db"
	"github.com/aegis-rbac/aegis/internal/shared"
	"github.com/aegis-rbac/aegis/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	// Redis only carries the closure cache; checks fall back to direct
	// graph walks without it, so a missing redis is not fatal here.
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
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("ensure authz schema", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(pool)
	if err := auditLogger.EnsureSchema(ctx); err != nil {
		logger.Error("ensure audit schema", slog.Any("error", err))
		os.Exit(1)
	}

	authRepo := auth.NewRepository(pool)
	if err := authRepo.EnsureSchema(ctx); err != nil {
		logger.Error("ensure token schema", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(authRepo, cfg.BootstrapToken)

	registry := authz.NewRegistry()
	registry.Register("allow_all", authz.AllowAll)
	registry.Register("is_author", authz.OwnerMatch)

	manager := authz.NewManager(store, registry, closureCache, logger)
	guard := authz.Middleware{Manager: manager, Logger: logger}

	metrics := observability.NewMetrics()
	if err := authz.SetupCacheMetrics(metrics.Registerer()); err != nil {
		logger.Warn("register cache metrics", slog.Any("error", err))
	}

	itemsHandler := items.NewHandler(logger, manager, auditLogger, guard)
	assignmentsHandler := assignments.NewHandler(logger, manager, auditLogger, guard, metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthService:        authService,
		ItemsHandler:       itemsHandler,
		AssignmentsHandler: assignmentsHandler,
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
