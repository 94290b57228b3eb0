package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// Event is one outgoing record. Value is JSON-encoded unless it is already
// a []byte.
type Event struct {
	Key   string
	Value any
}

// Producer writes events to a single topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
	retry  resilience.RetryConfig
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
		retry:  resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
	}
}

// Publish writes one event synchronously, retrying transient broker errors.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes all events in one call. Either the whole batch is
// acknowledged or an error is returned.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := encodeValue(event.Value)
		if err != nil {
			return err
		}
		messages = append(messages, kafka.Message{Key: []byte(event.Key), Value: value})
	}
	err := resilience.Retry(ctx, "kafka-publish", p.retry, func() error {
		err := p.writer.WriteMessages(ctx, messages...)
		var kerr kafka.Error
		if errors.As(err, &kerr) && !kerr.Temporary() {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		p.logger.Error("failed to publish", "count", len(messages), "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("published", "count", len(messages))
	return nil
}

func encodeValue(v any) ([]byte, error) {
	if raw, ok := v.([]byte); ok {
		return raw, nil
	}
	value, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling event value: %w", err)
	}
	return value, nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
