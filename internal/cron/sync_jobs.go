package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

const (
	defaultCleanupAfterDays = 7
	defaultStuckLease       = 15 * time.Minute
)

// syncQueue is the maintenance surface of the sync queue service.
type syncQueue interface {
	RetryFailedSyncs(ctx context.Context) (int64, error)
	ClearCompletedJobs(ctx context.Context, olderThanDays int) (int64, error)
	RecoverStuck(ctx context.Context, lease time.Duration) (int64, error)
}

type SyncJobsParams struct {
	Logger           *logger.Logger
	Queue            syncQueue
	CleanupAfterDays int
	StuckLease       time.Duration
}

// SyncJobs are the three sync queue maintenance jobs.
type SyncJobs struct {
	Retry   Job
	Cleanup Job
	Stuck   Job
}

// NewSyncJobs builds sync-retry, sync-cleanup and sync-stuck-recovery.
func NewSyncJobs(params SyncJobsParams) (*SyncJobs, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("sync queue required")
	}
	days := params.CleanupAfterDays
	if days <= 0 {
		days = defaultCleanupAfterDays
	}
	lease := params.StuckLease
	if lease <= 0 {
		lease = defaultStuckLease
	}
	return &SyncJobs{
		Retry:   &syncRetryJob{logg: params.Logger, queue: params.Queue},
		Cleanup: &syncCleanupJob{logg: params.Logger, queue: params.Queue, days: days},
		Stuck:   &stuckRecoveryJob{logg: params.Logger, queue: params.Queue, lease: lease},
	}, nil
}

type syncRetryJob struct {
	logg  *logger.Logger
	queue syncQueue
}

func (j *syncRetryJob) Name() string { return "sync-retry" }

// Run puts retryable FAILED jobs back to PENDING. Dead jobs stay put.
func (j *syncRetryJob) Run(ctx context.Context) error {
	reset, err := j.queue.RetryFailedSyncs(ctx)
	if err != nil {
		return fmt.Errorf("sync retry: %w", err)
	}
	if reset > 0 {
		j.logg.Info(j.logg.WithField(ctx, "jobs_reset", reset), "failed sync jobs requeued")
	}
	return nil
}

type syncCleanupJob struct {
	logg  *logger.Logger
	queue syncQueue
	days  int
}

func (j *syncCleanupJob) Name() string { return "sync-cleanup" }

func (j *syncCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.queue.ClearCompletedJobs(ctx, j.days)
	if err != nil {
		return fmt.Errorf("sync cleanup: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"older_than_days": j.days,
		"rows_deleted":    deleted,
	}), "completed sync jobs cleared")
	return nil
}

type stuckRecoveryJob struct {
	logg  *logger.Logger
	queue syncQueue
	lease time.Duration
}

func (j *stuckRecoveryJob) Name() string { return "sync-stuck-recovery" }

func (j *stuckRecoveryJob) Run(ctx context.Context) error {
	recovered, err := j.queue.RecoverStuck(ctx, j.lease)
	if err != nil {
		return fmt.Errorf("sync stuck recovery: %w", err)
	}
	if recovered > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"lease":     j.lease.String(),
			"recovered": recovered,
		}), "sync jobs stuck in processing were failed")
	}
	return nil
}
