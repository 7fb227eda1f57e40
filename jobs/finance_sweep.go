package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudandp/paradigm-ifs-sub000/internal/finance"
	jobmetrics "github.com/sudandp/paradigm-ifs-sub000/internal/jobs"
	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/cache"
	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Sweeper purges expired soft-deleted finance records.
type Sweeper interface {
	SweepExpired(ctx context.Context) (finance.SweepResult, error)
}

// Locker grants an exclusive lease on a key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// FinanceSweepJob runs the scheduled retention sweep under a redis lock so
// overlapping cron ticks and manual triggers do not purge concurrently.
type FinanceSweepJob struct {
	Sweeper Sweeper
	Locker  Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
}

// NewFinanceSweepJob initialises the sweep handler.
func NewFinanceSweepJob(sweeper Sweeper, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *FinanceSweepJob {
	return &FinanceSweepJob{
		Sweeper: sweeper,
		Locker:  locker,
		Logger:  logger,
		Metrics: metrics,
		LockTTL: 15 * time.Minute,
	}
}

// Handle executes one sweep.
func (j *FinanceSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("finance sweep: handler not configured")
	}
	var payload FinanceSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.RequestedBy)
	return err
}

// Run sweeps once. A sweep already in progress elsewhere is not an error.
func (j *FinanceSweepJob) Run(ctx context.Context, requestedBy string) (finance.SweepResult, error) {
	logger := j.logger()
	if requestedBy != "" {
		logger = logger.With(slog.String("requested_by", requestedBy))
	}

	release, err := j.acquire(ctx)
	if errors.Is(err, cache.ErrLockHeld) {
		logger.Info("sweep already running, skipping")
		return finance.SweepResult{Trigger: finance.TriggerSchedule}, nil
	}
	if err != nil {
		logger.Error("acquire sweep lock", slog.Any("error", err))
		return finance.SweepResult{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release sweep lock", slog.Any("error", err))
		}
	}()

	tracker := j.metrics().Track(TaskFinanceSweepExpired)
	res, err := j.Sweeper.SweepExpired(ctx)
	if err = tracker.End(err); err != nil {
		logger.Error("sweep failed", slog.Any("error", err), slog.Int("purged", res.Purged))
		return res, err
	}
	logger.Info("completed sweep",
		slog.Int("scanned", res.Scanned),
		slog.Int("purged", res.Purged),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func (j *FinanceSweepJob) acquire(ctx context.Context) (func(context.Context) error, error) {
	if j.Locker == nil {
		return func(context.Context) error { return nil }, nil
	}
	ttl := j.LockTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return j.Locker.Acquire(ctx, shared.FinanceSweepLockKey(""), ttl)
}

func (j *FinanceSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskFinanceSweepExpired))
	}
	return slog.Default().With(slog.String("job", TaskFinanceSweepExpired))
}

func (j *FinanceSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
