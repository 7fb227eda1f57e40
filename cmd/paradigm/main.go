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

	"github.com/sudandp/paradigm-ifs-sub000/internal/app"
	"github.com/sudandp/paradigm-ifs-sub000/internal/auth"
	"github.com/sudandp/paradigm-ifs-sub000/internal/finance"
	jobmetrics "github.com/sudandp/paradigm-ifs-sub000/internal/jobs"
	"github.com/sudandp/paradigm-ifs-sub000/internal/observability"
	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/cache"
	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/db"
	"github.com/sudandp/paradigm-ifs-sub000/internal/rbac"
	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
	"github.com/sudandp/paradigm-ifs-sub000/internal/sites"
	"github.com/sudandp/paradigm-ifs-sub000/jobs"
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "paradigm_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	fin := app.NewFinance(app.FinanceDeps{
		Config:  cfg,
		Pool:    pool,
		Redis:   redisClient,
		Logger:  logger,
		Metrics: jobMetrics,
	})
	rbacMiddleware := rbac.Middleware{Policy: fin.Policy, Logger: logger}

	authHandler := auth.NewHandler(logger, auth.NewService(auth.NewRepository(pool)), sessionManager, csrfManager)
	sitesHandler := sites.NewHandler(logger, fin.Directory)
	financeHandler := finance.NewHandler(logger, fin.Service, rbacMiddleware, shared.NewIdempotencyStore(pool))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, rbacMiddleware, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		RBACMiddleware: rbacMiddleware,
		AuthHandler:    authHandler,
		SitesHandler:   sitesHandler,
		FinanceHandler: financeHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
		Ready: func(r *http.Request) error {
			if err := pool.Ping(r.Context()); err != nil {
				return err
			}
			return redisClient.Ping(r.Context()).Err()
		},
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
