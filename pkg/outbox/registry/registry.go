// Package registry routes outbox rows to broker topics and decodes their
// payloads before the relay publishes them.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox/payloads"
)

// Topics names the destination of each event family on the active transport.
// Sync may be empty; sync events are then parked as no_route.
type Topics struct {
	Inventory string
	Orders    string
	Sync      string
}

func TopicsFromPubSub(cfg config.PubSubConfig) Topics {
	return Topics{Inventory: cfg.InventoryTopic, Orders: cfg.OrdersTopic, Sync: cfg.SyncTopic}
}

func TopicsFromKafka(cfg config.KafkaConfig) Topics {
	return Topics{Inventory: cfg.InventoryTopic, Orders: cfg.OrdersTopic, Sync: cfg.SyncTopic}
}

// Rejection marks a row the relay can never deliver as it stands.
type Rejection struct {
	Reason enums.OutboxDLQErrorReason
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err == nil {
		return string(r.Reason)
	}
	return string(r.Reason) + ": " + r.Err.Error()
}

func (r *Rejection) Unwrap() error { return r.Err }

func Reject(reason enums.OutboxDLQErrorReason, err error) error {
	return &Rejection{Reason: reason, Err: err}
}

// AsRejection finds a Rejection anywhere in err's chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Resolved is a decoded row together with where it goes.
type Resolved struct {
	EventType enums.OutboxEventType
	Topic     string
	Envelope  outbox.PayloadEnvelope
	Payload   any
}

type route struct {
	topic  string
	decode func(json.RawMessage) (any, error)
}

func decodeAs[T any](data json.RawMessage) (any, error) {
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

type Registry struct {
	routes map[enums.OutboxEventType]route
}

// New fails when the inventory or orders topic is missing; those carry the
// ledger and order streams every consumer depends on.
func New(topics Topics) (*Registry, error) {
	var err error
	if topics.Inventory == "" {
		err = multierr.Append(err, errors.New("inventory topic is required"))
	}
	if topics.Orders == "" {
		err = multierr.Append(err, errors.New("orders topic is required"))
	}
	if err != nil {
		return nil, err
	}
	return &Registry{routes: map[enums.OutboxEventType]route{
		enums.EventInventoryChanged:   {topics.Inventory, decodeAs[payloads.InventoryChangedEvent]},
		enums.EventLowStockDetected:   {topics.Inventory, decodeAs[payloads.LowStockDetectedEvent]},
		enums.EventOrderCreated:       {topics.Orders, decodeAs[payloads.OrderCreatedEvent]},
		enums.EventOrderStatusChanged: {topics.Orders, decodeAs[payloads.OrderStatusChangedEvent]},
		enums.EventSyncJobDead:        {topics.Sync, decodeAs[payloads.SyncJobDeadEvent]},
	}}, nil
}

// Resolve checks the row against its event type and decodes it. Every error
// it returns is a *Rejection.
func (r *Registry) Resolve(event models.OutboxEvent) (*Resolved, error) {
	rt, ok := r.routes[event.EventType]
	if !ok {
		return nil, Reject(enums.OutboxDLQReasonUnknownType, fmt.Errorf("no route for event type %q", event.EventType))
	}
	if want := event.EventType.Aggregate(); want != event.AggregateType {
		return nil, Reject(enums.OutboxDLQReasonMalformed, fmt.Errorf("%s belongs to %s, row says %s", event.EventType, want, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, Reject(enums.OutboxDLQReasonMalformed, errors.New("aggregate_id is empty"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, Reject(enums.OutboxDLQReasonMalformed, fmt.Errorf("envelope: %w", err))
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Reject(enums.OutboxDLQReasonMalformed, fmt.Errorf("%s has no payload", event.EventType))
	}
	payload, err := rt.decode(data)
	if err != nil {
		return nil, Reject(enums.OutboxDLQReasonMalformed, fmt.Errorf("%s payload: %w", event.EventType, err))
	}
	if rt.topic == "" {
		return nil, Reject(enums.OutboxDLQReasonNoRoute, fmt.Errorf("no topic configured for %s", event.EventType))
	}
	return &Resolved{
		EventType: event.EventType,
		Topic:     rt.topic,
		Envelope:  envelope,
		Payload:   payload,
	}, nil
}
