package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

const (
	defaultEventRetention = 30 * 24 * time.Hour
	defaultDLQRetention   = 90 * 24 * time.Hour
	publishedMinAttempts  = 5
)

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Events publishedEventStore
	// DLQ is optional; without it dead events are kept forever.
	DLQ            deadEventStore
	EventRetention time.Duration
	DLQRetention   time.Duration
	MinAttempts    int
}

type publishedEventStore interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadEventStore interface {
	DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error)
}

// NewOutboxRetentionJob prunes published events and expired DLQ entries, and
// reports what is still dead-lettered after the purge.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Events == nil:
		return nil, errors.New("published event store required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		events:      params.Events,
		dlq:         params.DLQ,
		eventWindow: orDefault(params.EventRetention, defaultEventRetention),
		dlqWindow:   orDefault(params.DLQRetention, defaultDLQRetention),
		minAttempts: params.MinAttempts,
		now:         time.Now,
	}
	if job.minAttempts <= 0 {
		job.minAttempts = publishedMinAttempts
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	events      publishedEventStore
	dlq         deadEventStore
	eventWindow time.Duration
	dlqWindow   time.Duration
	minAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff := now.Add(-j.eventWindow)
	dlqCutoff := now.Add(-j.dlqWindow)

	var events, dead int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.events.DeletePublishedBefore(ctx, tx, eventCutoff, j.minAttempts); err != nil {
			return fmt.Errorf("published events: %w", err)
		}
		if j.dlq == nil {
			return nil
		}
		if dead, err = j.dlq.DeleteBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("dlq: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	fields := map[string]any{
		"event_cutoff":   eventCutoff,
		"events_deleted": events,
	}
	if j.dlq != nil {
		fields["dlq_cutoff"] = dlqCutoff
		fields["dlq_deleted"] = dead
	}
	logCtx := j.logg.WithFields(ctx, fields)
	j.logg.Info(logCtx, "outbox retention cleanup complete")

	j.reportBacklog(logCtx)
	return nil
}

// reportBacklog warns when dead events remain. A failed count is logged, not returned.
func (j *outboxRetentionJob) reportBacklog(ctx context.Context) {
	if j.dlq == nil {
		return
	}
	counts, err := j.dlq.CountByReason(ctx)
	if err != nil {
		j.logg.Error(ctx, "count dlq backlog", err)
		return
	}
	var total int64
	byReason := make(map[string]any, len(counts))
	for reason, n := range counts {
		total += n
		byReason["dlq_"+string(reason)] = n
	}
	if total == 0 {
		return
	}
	byReason["dlq_total"] = total
	j.logg.Warn(j.logg.WithFields(ctx, byReason), "dead-lettered outbox events awaiting review")
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
