package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

const envelopeVersion = 1

var errNoTx = errors.New("outbox emit requires the caller's transaction")

// DomainEvent is what a service hands to Emit. AggregateType may be left
// empty; it is implied by EventType.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) check() error {
	want := e.EventType.Aggregate()
	switch {
	case want == "":
		return fmt.Errorf("unknown event type %q", e.EventType)
	case e.AggregateType != "" && e.AggregateType != want:
		return fmt.Errorf("%s describes %s, not %s", e.EventType, want, e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%s has no aggregate id", e.EventType)
	}
	return nil
}

type rowWriter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

// Service writes domain events to outbox_events. The relay publishes them
// after the surrounding transaction commits.
type Service struct {
	rows rowWriter
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{rows: repo, logg: logg, now: time.Now}
}

// Emit inserts event through tx, so it is published only if tx commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	if err := event.check(); err != nil {
		return err
	}
	row, envelope, err := s.encode(event)
	if err != nil {
		return err
	}
	if err := s.rows.Insert(tx, row); err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     envelope.EventID,
			"event_type":   row.EventType,
			"aggregate_id": row.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

func (s *Service) encode(event DomainEvent) (models.OutboxEvent, PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.Version <= 0 {
		envelope.Version = envelopeVersion
	}
	if event.OccurredAt.IsZero() {
		envelope.OccurredAt = s.now().UTC()
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, err
	}
	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.EventType.Aggregate(),
		AggregateID:   event.AggregateID,
		Payload:       raw,
	}, envelope, nil
}
