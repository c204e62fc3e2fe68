package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/metrics"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox/registry"
)

func orderRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type relayFixture struct {
	relay    *Relay
	events   *fakeEvents
	broker   *fakeBroker
	dead     *fakeDead
	resolver *fakeResolver
	registry *prometheus.Registry
}

func newRelayFixture(t *testing.T, maxAttempts int, rows ...models.OutboxEvent) *relayFixture {
	t.Helper()
	f := &relayFixture{
		events:   &fakeEvents{rows: rows},
		broker:   &fakeBroker{},
		dead:     &fakeDead{},
		resolver: &fakeResolver{topic: "orders-topic"},
		registry: prometheus.NewRegistry(),
	}
	relay, err := NewRelay(RelayParams{
		Outbox:      config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: maxAttempts},
		Logger:      logger.Nop(),
		DB:          fakeTx{},
		Transport:   f.broker,
		Events:      f.events,
		DeadLetters: f.dead,
		Registry:    f.resolver,
		Metrics:     metrics.NewOutboxMetrics(f.registry),
	})
	require.NoError(t, err)
	f.relay = relay
	return f
}

func TestDrainRetriesOneRowAndPublishesTheNext(t *testing.T) {
	first, second := orderRow(t, 0), orderRow(t, 0)
	f := newRelayFixture(t, 5, first, second)
	f.broker.errs = []error{errors.New("broker timeout"), nil}

	claimed, err := f.relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	assert.Equal(t, []uuid.UUID{first.ID}, f.events.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, f.events.published)
	assert.Empty(t, f.dead.entries)
}

func TestDrainBuildsKeyedMessage(t *testing.T) {
	row := orderRow(t, 0)
	f := newRelayFixture(t, 5, row)

	_, err := f.relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, f.broker.sent, 1)
	msg := f.broker.sent[0]
	assert.Equal(t, "orders-topic", msg.Topic)
	assert.Equal(t, row.AggregateID.String(), msg.Key)
	assert.Equal(t, []byte(row.Payload), msg.Data)
	assert.Equal(t, string(enums.EventOrderCreated), msg.Attributes["event_type"])
	assert.Equal(t, row.ID.String(), msg.Attributes["event_id"])
	families, err := f.registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.ElementsMatch(t, []string{"outbox_batch_events", "outbox_events_total", "outbox_publish_seconds"}, names)
}

func TestDrainDeadLettersRejectedRows(t *testing.T) {
	row := orderRow(t, 0)
	f := newRelayFixture(t, 5, row)
	f.resolver.err = registry.Reject(enums.OutboxDLQReasonMalformed, errors.New("payload is not json"))

	_, err := f.relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, f.dead.entries, 1)
	entry := f.dead.entries[0]
	assert.Equal(t, row.ID, entry.EventID)
	assert.Equal(t, enums.OutboxDLQReasonMalformed, entry.ErrorReason)
	assert.Equal(t, []byte(row.Payload), []byte(entry.Payload))
	assert.Equal(t, []uuid.UUID{row.ID}, f.events.terminal)
	assert.Empty(t, f.broker.sent)
}

func TestDrainDeadLettersWhenAttemptsRunOut(t *testing.T) {
	row := orderRow(t, 1)
	f := newRelayFixture(t, 2, row)
	f.broker.errs = []error{errors.New("broker timeout")}

	_, err := f.relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, f.dead.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, f.dead.entries[0].ErrorReason)
	assert.Equal(t, 2, f.dead.entries[0].AttemptCount)
	assert.Empty(t, f.events.failed)
}

func TestDrainPropagatesStoreFailure(t *testing.T) {
	f := newRelayFixture(t, 5, orderRow(t, 0))
	f.events.markErr = errors.New("connection reset")

	_, err := f.relay.drain(context.Background())
	assert.ErrorContains(t, err, "connection reset")
}

func TestJudge(t *testing.T) {
	transient := errors.New("timeout")
	cases := map[string]struct {
		err      error
		attempts int
		outcome  string
		reason   enums.OutboxDLQErrorReason
	}{
		"published":      {nil, 0, metrics.RelayPublished, ""},
		"retry":          {transient, 3, metrics.RelayRetry, ""},
		"last attempt":   {transient, 4, metrics.RelayDeadLetter, enums.OutboxDLQReasonMaxAttempts},
		"rejected":       {registry.Reject(enums.OutboxDLQReasonUnknownType, transient), 0, metrics.RelayDeadLetter, enums.OutboxDLQReasonUnknownType},
		"broker refusal": {fmt.Errorf("publish: %w", outbox.ErrUndeliverable), 0, metrics.RelayDeadLetter, enums.OutboxDLQReasonNonRetryable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := judge(tc.err, tc.attempts, 5)
			assert.Equal(t, tc.outcome, v.outcome)
			assert.Equal(t, tc.reason, v.reason)
		})
	}
}

func TestNewRelayNamesEveryMissingDependency(t *testing.T) {
	_, err := NewRelay(RelayParams{Logger: logger.Nop()})
	require.Error(t, err)
	for _, name := range []string{"database", "transport", "event store", "dead letters", "registry"} {
		assert.ErrorContains(t, err, name)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newRelayFixture(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.relay.Run(ctx), context.Canceled)
}

type fakeTx struct{}

func (fakeTx) Ping(context.Context) error { return nil }

func (fakeTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakeEvents struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (f *fakeEvents) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.rows, nil
}

func (f *fakeEvents) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return f.markErr
}

func (f *fakeEvents) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return f.markErr
}

func (f *fakeEvents) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return f.markErr
}

type fakeBroker struct {
	errs []error
	sent []outbox.Message
}

func (f *fakeBroker) Ping(context.Context) error { return nil }

func (f *fakeBroker) Publish(_ context.Context, msg outbox.Message) error {
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, msg)
	}
	return err
}

type fakeResolver struct {
	topic string
	err   error
}

func (f *fakeResolver) Resolve(row models.OutboxEvent) (*registry.Resolved, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.Resolved{
		EventType: row.EventType,
		Topic:     f.topic,
		Envelope:  outbox.PayloadEnvelope{EventID: row.ID.String(), OccurredAt: time.Now()},
	}, nil
}

type fakeDead struct {
	entries []models.OutboxDLQ
}

func (f *fakeDead) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
