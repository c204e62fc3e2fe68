package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/outbox"
)

const defaultWriteTimeout = 5 * time.Second

var errNoBrokers = errors.New("kafka brokers are required")

// Producer writes outbox messages to kafka. The topic is chosen per message.
type Producer struct {
	writer  *kafkago.Writer
	brokers []string
	timeout time.Duration
}

// NewProducer builds a producer for the configured brokers.
func NewProducer(cfg config.KafkaConfig, logg *logger.Logger) (*Producer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	p := &Producer{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Balancer:               &kafkago.Hash{},
			BatchSize:              1,
			RequiredAcks:           kafkago.RequireAll,
			Compression:            kafkago.Snappy,
			AllowAutoTopicCreation: false,
		},
		brokers: brokers,
		timeout: timeout,
	}
	if logg != nil {
		logg.Info(context.Background(), "kafka producer initialized")
	}
	return p, nil
}

// Publish writes one message keyed by aggregate so events of the same
// aggregate land on the same partition.
func (p *Producer) Publish(ctx context.Context, msg outbox.Message) error {
	if strings.TrimSpace(msg.Topic) == "" {
		return errors.New("kafka topic is required")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		if permanent(err) {
			return fmt.Errorf("write to kafka topic %s: %w: %w", msg.Topic, outbox.ErrUndeliverable, err)
		}
		return fmt.Errorf("write to kafka topic %s: %w", msg.Topic, err)
	}
	return nil
}

// permanent reports broker errors kafka marks as non-temporary, such as an
// oversized message or a denied topic.
func permanent(err error) bool {
	var writeErrs kafkago.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && !permanent(e) {
				return false
			}
		}
		return writeErrs.Count() > 0
	}
	var kerr kafkago.Error
	return errors.As(err, &kerr) && !kerr.Temporary()
}

func toKafkaMessage(msg outbox.Message) kafkago.Message {
	keys := make([]string, 0, len(msg.Attributes))
	for key := range msg.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	headers := make([]kafkago.Header, 0, len(keys))
	for _, key := range keys {
		headers = append(headers, kafkago.Header{Key: key, Value: []byte(msg.Attributes[key])})
	}
	return kafkago.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
	}
}

// Ping dials the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	var errs []error
	for _, broker := range p.brokers {
		dialer := &kafkago.Dialer{Timeout: p.timeout}
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", broker, err))
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("kafka unreachable: %w", errors.Join(errs...))
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
