package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sudandp/paradigm-ifs-sub000/internal/app"
	jobmetrics "github.com/sudandp/paradigm-ifs-sub000/internal/jobs"
	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/cache"
	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/db"
	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
	"github.com/sudandp/paradigm-ifs-sub000/jobs"
)

func main() {
	once := flag.Bool("once", false, "run one finance retention sweep and exit")
	flag.Parse()

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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	metrics := jobmetrics.NewMetrics(nil)
	fin := app.NewFinance(app.FinanceDeps{
		Config:  cfg,
		Pool:    pool,
		Redis:   redisClient,
		Logger:  logger,
		Metrics: metrics,
	})
	sweepJob := jobs.NewFinanceSweepJob(fin.Service, cache.NewLocker(redisClient), logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), cfg.IdempotencyRetention, logger, metrics)

	if *once {
		res, err := sweepJob.Run(ctx, "cli")
		if err != nil {
			logger.Error("sweep", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("sweep finished", slog.Int("purged", res.Purged), slog.Int("failed", res.Failed))
		return
	}

	sweepTask, err := jobs.NewFinanceSweepTask(jobs.FinanceSweepPayload{RequestedBy: "cron"})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskFinanceSweepExpired, Handler: sweepJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.FinanceSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
			{Spec: cfg.IdempotencyCleanupCron, Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker",
		slog.String("sweep_cron", cfg.FinanceSweepCron),
		slog.String("idempotency_cleanup_cron", cfg.IdempotencyCleanupCron),
	)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
