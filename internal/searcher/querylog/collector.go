package querylog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/logger"
)

// BatchPublisher is satisfied by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector feeds every tracked event to the aggregator and, when a
// publisher is set, buffers it for Kafka. The buffer is flushed when it
// reaches batchSize or every flushInterval. Failed batches are requeued up
// to three batches' worth; beyond that the oldest events are dropped.
type Collector struct {
	publisher     BatchPublisher
	aggregator    *Aggregator
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	buffer  []kafka.Event
	flushMu sync.Mutex
	done    chan struct{}
}

func NewCollector(publisher BatchPublisher, aggregator *Aggregator, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		aggregator:    aggregator,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger.WithComponent("query-log"),
		buffer:        make([]kafka.Event, 0, batchSize),
		done:          make(chan struct{}),
	}
}

// Start runs the periodic flush until ctx is cancelled, then flushes once
// more. Without a publisher it only closes the done channel.
func (c *Collector) Start(ctx context.Context) {
	if c.publisher == nil {
		close(c.done)
		return
	}
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("query log started", "batch_size", c.batchSize, "flush_interval", c.flushInterval)
}

func (c *Collector) Track(ev Event) {
	if c.aggregator != nil {
		c.aggregator.Record(ev)
	}
	if c.publisher == nil {
		return
	}
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{Key: normalize(ev.Query), Value: ev})
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()
	if full {
		go c.flush(context.Background())
	}
}

// Close waits for the flush loop started by Start to exit.
func (c *Collector) Close() {
	<-c.done
}

func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) flush(ctx context.Context) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("query log flush failed", "events", len(batch), "error", err)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			dropped := len(c.buffer) - limit
			c.buffer = c.buffer[dropped:]
			c.logger.Warn("query log buffer overflow, events dropped", "dropped", dropped)
		}
		c.mu.Unlock()
		return
	}
	c.logger.Debug("query log flushed", "events", len(batch))
}
