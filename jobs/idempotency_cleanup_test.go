package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/sudandp/paradigm-ifs-sub000/internal/jobs"
)

type stubCleaner struct {
	olderThan []time.Duration
	err       error
}

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	s.olderThan = append(s.olderThan, olderThan)
	return s.err
}

func TestIdempotencyCleanupJob(t *testing.T) {
	store := &stubCleaner{}
	job := NewIdempotencyCleanupJob(store, 48*time.Hour, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	assert.Equal(t, []time.Duration{48 * time.Hour}, store.olderThan)

	job.Retention = 0
	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	assert.Equal(t, 30*24*time.Hour, store.olderThan[1])

	store.err = errors.New("db down")
	assert.ErrorIs(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()), store.err)

	var unset *IdempotencyCleanupJob
	assert.Error(t, unset.Handle(context.Background(), NewIdempotencyCleanupTask()))
}
