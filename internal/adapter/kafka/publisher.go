package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/geonews-etl/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher emits newly written disaster records to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a producer for topic on the given brokers.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{writer: w, topic: topic, logger: logger}
}

// Publish writes records in a single WriteMessages call. Messages are keyed
// by record ID so updates to one event land on one partition.
func (p *Publisher) Publish(ctx context.Context, records []domain.PersistedRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := recordMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	p.logger.Debug("records published", "topic", p.topic, "count", len(msgs))
	return nil
}

// Close flushes pending messages and closes the producer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func recordMessage(r domain.PersistedRecord) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record %s: %w", r.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(r.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "disaster_event", Value: []byte(r.DisasterEvent)},
			{Key: "processed_at", Value: []byte(r.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
