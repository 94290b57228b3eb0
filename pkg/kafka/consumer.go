// Package kafka wraps segmentio/kafka-go for the two streams the system
// uses: crawl records flowing into the indexer and index-complete events
// flowing to searchers. Values are JSON on the wire.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler is invoked once per fetched message. A nil return commits
// the message.
type MessageHandler func(ctx context.Context, msg Message) error

// Message is the subset of a Kafka record handlers need.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
}

// Consumer reads one topic inside a consumer group.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
}

// ConsumerOption tweaks the reader before it is created.
type ConsumerOption func(*kafka.ReaderConfig)

// FromFirstOffset starts a fresh group at the beginning of the topic, which
// is what a full index build wants.
func FromFirstOffset() ConsumerOption {
	return func(rc *kafka.ReaderConfig) {
		rc.StartOffset = kafka.FirstOffset
	}
}

// WithGroup overrides the configured consumer group.
func WithGroup(group string) ConsumerOption {
	return func(rc *kafka.ReaderConfig) {
		rc.GroupID = group
	}
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	}
	for _, opt := range opts {
		opt(&rc)
	}
	return &Consumer{
		reader:  kafka.NewReader(rc),
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
	}
}

// Start consumes until ctx is cancelled. Handler failures are logged and the
// message is left uncommitted.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.dispatch(ctx, msg)
	}
}

// Drain consumes until the topic has been idle for the given duration or
// max messages were handled (max <= 0 means unbounded). Unlike Start, a
// handler error stops the drain and is returned.
func (c *Consumer) Drain(ctx context.Context, idle time.Duration, max int) (int, error) {
	handled := 0
	for max <= 0 || handled < max {
		fetchCtx, cancel := context.WithTimeout(ctx, idle)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return handled, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("topic idle, drain complete", "handled", handled, "idle", idle)
				return handled, nil
			}
			return handled, fmt.Errorf("fetching message: %w", err)
		}
		if err := c.handler(ctx, toMessage(msg)); err != nil {
			return handled, err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("failed to commit message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
		handled++
	}
	return handled, nil
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) {
	c.logger.Debug("message received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"value_size", len(msg.Value),
	)
	if err := c.handler(ctx, toMessage(msg)); err != nil {
		c.logger.Error("failed to process message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

func toMessage(msg kafka.Message) Message {
	return Message{Key: msg.Key, Value: msg.Value, Partition: msg.Partition, Offset: msg.Offset}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
