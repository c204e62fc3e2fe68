package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

type fakeEventStore struct {
	cutoff      time.Time
	minAttempts int
	calls       int
	err         error
}

func (f *fakeEventStore) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.minAttempts = minAttemptCount
	return 7, f.err
}

type fakeDeadStore struct {
	cutoff   time.Time
	calls    int
	counts   map[enums.OutboxDLQErrorReason]int64
	countErr error
	err      error
}

func (f *fakeDeadStore) DeleteBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return 2, f.err
}

func (f *fakeDeadStore) CountByReason(context.Context) (map[enums.OutboxDLQErrorReason]int64, error) {
	return f.counts, f.countErr
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

var retentionNow = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

func newRetentionJob(t *testing.T, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.Nop()
	params.DB = passthroughTx{}
	built, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	job, ok := built.(*outboxRetentionJob)
	require.True(t, ok, "unexpected job type %T", built)
	job.now = func() time.Time { return retentionNow }
	return job
}

func TestOutboxRetentionDefaults(t *testing.T) {
	events := &fakeEventStore{}
	dead := &fakeDeadStore{}
	job := newRetentionJob(t, OutboxRetentionJobParams{Events: events, DLQ: dead})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, events.calls)
	assert.True(t, events.cutoff.Equal(retentionNow.Add(-defaultEventRetention)), "event cutoff %s", events.cutoff)
	assert.Equal(t, publishedMinAttempts, events.minAttempts)
	assert.Equal(t, 1, dead.calls)
	assert.True(t, dead.cutoff.Equal(retentionNow.Add(-defaultDLQRetention)), "dlq cutoff %s", dead.cutoff)
}

func TestOutboxRetentionConfiguredWindows(t *testing.T) {
	events := &fakeEventStore{}
	dead := &fakeDeadStore{counts: map[enums.OutboxDLQErrorReason]int64{enums.OutboxDLQReasonMaxAttempts: 3}}
	job := newRetentionJob(t, OutboxRetentionJobParams{
		Events:         events,
		DLQ:            dead,
		EventRetention: 72 * time.Hour,
		DLQRetention:   240 * time.Hour,
	})

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, events.cutoff.Equal(retentionNow.Add(-72*time.Hour)))
	assert.True(t, dead.cutoff.Equal(retentionNow.Add(-240*time.Hour)))
}

func TestOutboxRetentionWithoutDLQ(t *testing.T) {
	events := &fakeEventStore{}
	job := newRetentionJob(t, OutboxRetentionJobParams{Events: events})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, events.calls)
}

func TestOutboxRetentionErrors(t *testing.T) {
	t.Run("published events", func(t *testing.T) {
		job := newRetentionJob(t, OutboxRetentionJobParams{Events: &fakeEventStore{err: errors.New("boom")}})
		assert.ErrorContains(t, job.Run(context.Background()), "published events")
	})
	t.Run("dlq", func(t *testing.T) {
		job := newRetentionJob(t, OutboxRetentionJobParams{
			Events: &fakeEventStore{},
			DLQ:    &fakeDeadStore{err: errors.New("boom")},
		})
		assert.ErrorContains(t, job.Run(context.Background()), "dlq")
	})
	t.Run("backlog count is not fatal", func(t *testing.T) {
		job := newRetentionJob(t, OutboxRetentionJobParams{
			Events: &fakeEventStore{},
			DLQ:    &fakeDeadStore{countErr: errors.New("boom")},
		})
		assert.NoError(t, job.Run(context.Background()))
	})
}

func TestOutboxRetentionRequiresEventStore(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), DB: passthroughTx{}})
	assert.Error(t, err)
}
