package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFinanceSweepExpired purges finance records whose retention window has lapsed.
	TaskFinanceSweepExpired = "finance:sweep-expired"
	// TaskIdempotencyCleanup drops idempotency keys past their retention.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// FinanceSweepPayload describes who asked for a sweep.
type FinanceSweepPayload struct {
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewFinanceSweepTask constructs an Asynq task for the retention sweep.
func NewFinanceSweepTask(payload FinanceSweepPayload) (*asynq.Task, error) {
	if payload.RequestedAt.IsZero() {
		payload.RequestedAt = time.Now().UTC()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFinanceSweepExpired, data, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// NewIdempotencyCleanupTask constructs the idempotency key cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.MaxRetry(1), asynq.Timeout(5*time.Minute))
}
