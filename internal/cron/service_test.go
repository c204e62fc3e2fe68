package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/metrics"
)

type fakeLock struct {
	acquired bool
	held     bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired || f.held {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	service := newTestService(t, &fakeLock{}, success, failure)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 1, success.runs)
	assert.Equal(t, 1, failure.runs)
}

func TestServiceHonoursPerJobInterval(t *testing.T) {
	frequent := &testJob{name: "sync-retry"}
	daily := &testJob{name: "sync-cleanup"}
	service := newTestService(t, &fakeLock{}, frequent, Every(daily, 24*time.Hour))

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, service.runCycle(ctx))
	now = now.Add(time.Minute)
	require.NoError(t, service.runCycle(ctx))
	now = now.Add(24 * time.Hour)
	require.NoError(t, service.runCycle(ctx))

	assert.Equal(t, 3, frequent.runs)
	assert.Equal(t, 2, daily.runs)
}

func TestServiceSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &testJob{name: "sync-retry"}
	service := newTestService(t, &fakeLock{held: true}, job)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Zero(t, job.runs)

	// an unrun job stays due for the next tick
	assert.Len(t, service.dueJobs(), 1)
}

type panicJob struct{}

func (panicJob) Name() string { return "explodes" }

func (panicJob) Run(context.Context) error { panic("nil ledger") }

func TestServiceRecoversPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	lock := &fakeLock{}
	service := newTestService(t, lock, panicJob{}, after)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 1, after.runs)
	assert.False(t, lock.acquired, "lock released after the cycle")
}

func TestServiceStopsCycleOnCancel(t *testing.T) {
	job := &testJob{name: "sync-retry"}
	service := newTestService(t, &fakeLock{}, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, service.runCycle(ctx), context.Canceled)
	assert.Zero(t, job.runs)
}

func TestNewServiceReportsEveryMissingDependency(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger required")
	assert.Contains(t, err.Error(), "lock required")

	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	assert.Error(t, err)
}
