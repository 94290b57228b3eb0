package feed

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/crawl"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
)

// BatchPublisher is satisfied by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// KafkaSink publishes records as JSON keyed by URL, the format KafkaSource
// reads back.
type KafkaSink struct {
	producer BatchPublisher
	topic    string
}

func NewKafkaSink(producer BatchPublisher, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (k *KafkaSink) Name() string {
	return "kafka:" + k.topic
}

func (k *KafkaSink) Write(ctx context.Context, batch []crawl.Record) error {
	events := make([]kafka.Event, len(batch))
	for i, rec := range batch {
		value, err := crawl.EncodeRecord(rec)
		if err != nil {
			return err
		}
		events[i] = kafka.Event{Key: rec.URL, Value: value}
	}
	return k.producer.PublishBatch(ctx, events)
}
