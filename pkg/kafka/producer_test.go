package kafka

import (
	"errors"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
)

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{Brokers: []string{" "}}, logger.Nop())
	assert.ErrorIs(t, err, errNoBrokers)
}

func TestNewProducerDefaultsTimeout(t *testing.T) {
	p, err := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, logger.Nop())
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, defaultWriteTimeout, p.timeout)
	assert.Equal(t, []string{"localhost:9092"}, p.brokers)

	p2, err := NewProducer(config.KafkaConfig{Brokers: []string{"b1:9092"}, WriteTimeout: time.Second}, nil)
	require.NoError(t, err)
	defer p2.Close()
	assert.Equal(t, time.Second, p2.timeout)
}

func TestToKafkaMessageSortsHeaders(t *testing.T) {
	msg := toKafkaMessage(outbox.Message{
		Topic:      "inventory-events",
		Key:        "variant-1",
		Data:       []byte(`{"ok":true}`),
		Attributes: map[string]string{"event_type": "inventory_changed", "aggregate_id": "variant-1"},
	})
	assert.Equal(t, "inventory-events", msg.Topic)
	assert.Equal(t, []byte("variant-1"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "aggregate_id", msg.Headers[0].Key)
	assert.Equal(t, "event_type", msg.Headers[1].Key)
	assert.Equal(t, []byte("inventory_changed"), msg.Headers[1].Value)
}

func TestPermanentWriteErrors(t *testing.T) {
	assert.True(t, permanent(kafkago.MessageSizeTooLarge))
	assert.True(t, permanent(fmt.Errorf("wrapped: %w", kafkago.TopicAuthorizationFailed)))
	assert.False(t, permanent(kafkago.LeaderNotAvailable))
	assert.False(t, permanent(errors.New("dial tcp: connection refused")))

	assert.True(t, permanent(kafkago.WriteErrors{kafkago.MessageSizeTooLarge, nil}))
	assert.False(t, permanent(kafkago.WriteErrors{kafkago.MessageSizeTooLarge, kafkago.RequestTimedOut}))
}
