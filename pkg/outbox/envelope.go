package outbox

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrUndeliverable is wrapped by transports when the broker refuses a message
// in a way that resending the same bytes cannot fix.
var ErrUndeliverable = errors.New("message undeliverable")

// ActorRef identifies who produced the event.
type ActorRef struct {
	OperatorID string `json:"operatorId,omitempty"`
	Role       string `json:"role,omitempty"`
	Source     string `json:"source,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Message is a resolved outbox row ready for a transport. Key orders delivery
// per aggregate where the transport supports it.
type Message struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}
