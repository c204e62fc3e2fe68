package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/metrics"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	pauseCeiling       = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// transport is satisfied by pubsub.Client and kafka.Producer.
type transport interface {
	Ping(context.Context) error
	Publish(context.Context, outbox.Message) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

type RelayParams struct {
	Outbox        config.OutboxConfig
	Logger        *logger.Logger
	DB            txRunner
	Transport     transport
	TransportName string
	Events        eventStore
	DeadLetters   deadLetters
	Registry      resolver
	Metrics       *metrics.OutboxMetrics
}

// Relay moves committed outbox rows onto the broker. Rows are claimed with
// SKIP LOCKED inside one transaction per batch, so several relays can run
// against the same table.
type Relay struct {
	logg          *logger.Logger
	db            txRunner
	transport     transport
	transportName string
	events        eventStore
	dead          deadLetters
	registry      resolver
	metrics       *metrics.OutboxMetrics
	batchSize     int
	maxAttempts   int
	poll          time.Duration
	now           func() time.Time
}

func NewRelay(p RelayParams) (*Relay, error) {
	var err error
	for name, missing := range map[string]bool{
		"logger":       p.Logger == nil,
		"database":     p.DB == nil,
		"transport":    p.Transport == nil,
		"event store":  p.Events == nil,
		"dead letters": p.DeadLetters == nil,
		"registry":     p.Registry == nil,
	} {
		if missing {
			err = multierr.Append(err, fmt.Errorf("%s is required", name))
		}
	}
	if err != nil {
		return nil, err
	}

	r := &Relay{
		logg:          p.Logger,
		db:            p.DB,
		transport:     p.Transport,
		transportName: p.TransportName,
		events:        p.Events,
		dead:          p.DeadLetters,
		registry:      p.Registry,
		metrics:       p.Metrics,
		batchSize:     p.Outbox.BatchSize,
		maxAttempts:   p.Outbox.MaxAttempts,
		poll:          time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond,
		now:           time.Now,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPoll
	}
	if r.transportName == "" {
		r.transportName = config.TransportPubSub
	}
	return r, nil
}

// Run drains the outbox until ctx ends. A full batch is followed immediately
// by the next one; an empty batch waits one poll interval; a failed batch
// backs off exponentially up to pauseCeiling.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := r.transport.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping: %w", r.transportName, err)
	}

	pause := r.poll
	for ctx.Err() == nil {
		claimed, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			pause = min(pause*2, pauseCeiling)
		case claimed > 0:
			pause = r.poll
			continue
		default:
			pause = r.poll
		}
		if err := sleep(ctx, pause+rand.N(jitterWindow)); err != nil {
			break
		}
	}
	r.logg.Info(ctx, "outbox relay stopped")
	return ctx.Err()
}

// drain claims one batch and settles every row in it before committing.
func (r *Relay) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows)
		r.metrics.ObserveBatch(claimed)
		for _, row := range rows {
			v := judge(r.deliver(ctx, row), row.AttemptCount, r.maxAttempts)
			if err := r.settle(ctx, tx, row, v); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) error {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return err
	}
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	started := r.now()
	err = r.transport.Publish(publishCtx, message(row, resolved))
	r.metrics.ObservePublish(r.transportName, r.now().Sub(started))
	return err
}

// message keys by aggregate so one variant's or order's events stay ordered.
func message(row models.OutboxEvent, resolved *registry.Resolved) outbox.Message {
	return outbox.Message{
		Topic: resolved.Topic,
		Key:   row.AggregateID.String(),
		Data:  row.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// verdict is what happens to a row after one delivery attempt.
type verdict struct {
	outcome string
	reason  enums.OutboxDLQErrorReason
	err     error
}

// judge turns a delivery error into a verdict. attempts is the count before
// this try.
func judge(err error, attempts, maxAttempts int) verdict {
	if err == nil {
		return verdict{outcome: metrics.RelayPublished}
	}
	if rej, ok := registry.AsRejection(err); ok {
		return verdict{outcome: metrics.RelayDeadLetter, reason: rej.Reason, err: err}
	}
	if errors.Is(err, outbox.ErrUndeliverable) {
		return verdict{outcome: metrics.RelayDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	if attempts+1 >= maxAttempts {
		return verdict{
			outcome: metrics.RelayDeadLetter,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			err:     fmt.Errorf("gave up after %d attempts: %w", attempts+1, err),
		}
	}
	return verdict{outcome: metrics.RelayRetry, err: err}
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, v verdict) error {
	r.metrics.ObserveEvent(string(row.EventType), v.outcome)
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":    row.ID.String(),
		"event_type":   row.EventType,
		"aggregate_id": row.AggregateID.String(),
		"attempt":      row.AttemptCount + 1,
		"transport":    r.transportName,
	})

	switch v.outcome {
	case metrics.RelayPublished:
		if err := r.events.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		r.logg.Debug(logCtx, "outbox event published")
	case metrics.RelayRetry:
		r.logg.Warn(r.logg.WithField(logCtx, "error", v.err.Error()), "outbox publish failed, will retry")
		if err := r.events.MarkFailedTx(tx, row.ID, v.err); err != nil {
			return fmt.Errorf("mark %s failed: %w", row.ID, err)
		}
	default:
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
			"error":        v.err.Error(),
			"error_reason": v.reason,
			"replayable":   v.reason.Replayable(),
		}), "outbox event dead-lettered")
		msg := v.err.Error()
		if err := r.dead.InsertTx(tx, models.OutboxDLQ{
			EventID:       row.ID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			Payload:       row.Payload,
			ErrorReason:   v.reason,
			ErrorMessage:  &msg,
			AttemptCount:  row.AttemptCount + 1,
			FailedAt:      r.now().UTC(),
		}); err != nil {
			return fmt.Errorf("dead-letter %s: %w", row.ID, err)
		}
		if err := r.events.MarkTerminalTx(tx, row.ID, v.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark %s terminal: %w", row.ID, err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
