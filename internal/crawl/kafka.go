package crawl

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
)

// KafkaSource drains the crawl-records topic from the first offset. The
// topic has no natural end, so the source stops once it has been idle for
// IdleTimeout or MaxRecords were read. Record order is only deterministic
// when the topic has a single partition.
type KafkaSource struct {
	cfg      config.KafkaConfig
	topic    string
	idle     time.Duration
	max      int
	group    string
	consumer *kafka.Consumer
}

func NewKafkaSource(kcfg config.KafkaConfig, ccfg config.CrawlConfig) *KafkaSource {
	return &KafkaSource{
		cfg:   kcfg,
		topic: kcfg.Topics.CrawlRecords,
		idle:  ccfg.IdleTimeout,
		max:   ccfg.MaxRecords,
		group: kcfg.ConsumerGroup + "-build-" + time.Now().UTC().Format("20060102T150405"),
	}
}

func (k *KafkaSource) Name() string {
	return "kafka:" + k.topic
}

func (k *KafkaSource) Records(ctx context.Context, emit EmitFunc) error {
	handler := func(_ context.Context, msg kafka.Message) error {
		origin := fmt.Sprintf("%s/%d@%d", k.topic, msg.Partition, msg.Offset)
		return emit(DecodeRecord(msg.Value, origin))
	}
	// A fresh group per build so every build re-reads the whole topic.
	k.consumer = kafka.NewConsumer(k.cfg, k.topic, handler, kafka.WithGroup(k.group), kafka.FromFirstOffset())
	defer k.consumer.Close()
	if _, err := k.consumer.Drain(ctx, k.idle, k.max); err != nil {
		return fmt.Errorf("draining %s: %w", k.topic, err)
	}
	return nil
}
