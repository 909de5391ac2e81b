package audit

import (
	"context"
	"fmt"

	"github.com/aristath/ledger/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/vmihailenco/msgpack/v5"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher fans audit entries out to a topic as msgpack messages keyed by actor.
// Writes are asynchronous; delivery failures are logged and counted, never returned.
type KafkaPublisher struct {
	writer messageWriter
	log    zerolog.Logger
}

// NewKafkaPublisher creates an async publisher for topic on brokers
func NewKafkaPublisher(brokers []string, topic string, m *metrics.Metrics, log zerolog.Logger) *KafkaPublisher {
	log = log.With().Str("component", "audit_kafka").Logger()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err == nil {
				return
			}
			for range messages {
				m.AuditFailure()
			}
			log.Warn().Err(err).Int("messages", len(messages)).Msg("Failed to deliver audit messages")
		},
	}

	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("Audit Kafka publisher created")
	return newKafkaPublisher(writer, log)
}

func newKafkaPublisher(writer messageWriter, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, log: log}
}

// Publish encodes e and hands it to the writer
func (p *KafkaPublisher) Publish(ctx context.Context, e Entry) error {
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.ActorID),
		Value: data,
	}); err != nil {
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}

	p.log.Debug().Str("entry_id", e.ID).Str("action_type", e.ActionType).Msg("Audit entry published")
	return nil
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// DecodeEntry decodes a message value produced by Publish
func DecodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("failed to decode audit entry: %w", err)
	}
	return e, nil
}
