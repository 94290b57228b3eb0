// Package feed loads crawl records into the stores the indexer reads from:
// the crawl-records Kafka topic or the crawl table in PostgreSQL. Records
// are validated first; invalid ones are counted and skipped.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/crawl"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/logger"
)

// Sink stores a batch of records. A batch is written entirely or not at all.
type Sink interface {
	Write(ctx context.Context, batch []crawl.Record) error
	Name() string
}

type Stats struct {
	Read     int
	Written  int
	Rejected int
	Batches  int
	Duration time.Duration
}

type Feeder struct {
	sink      Sink
	batchSize int
	logger    *slog.Logger
}

func New(sink Sink, batchSize int) *Feeder {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Feeder{
		sink:      sink,
		batchSize: batchSize,
		logger:    logger.WithComponent("feeder").With("sink", sink.Name()),
	}
}

// Run copies every valid record from source into the sink, in source order.
func (f *Feeder) Run(ctx context.Context, source crawl.Source) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}
	batch := make([]crawl.Record, 0, f.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := f.sink.Write(ctx, batch); err != nil {
			return fmt.Errorf("writing batch %d to %s: %w", stats.Batches, f.sink.Name(), err)
		}
		stats.Written += len(batch)
		stats.Batches++
		f.logger.Debug("batch written", "records", len(batch), "total", stats.Written)
		batch = batch[:0]
		return nil
	}

	err := source.Records(ctx, func(rec crawl.Record) error {
		stats.Read++
		if err := crawl.Validate(rec); err != nil {
			var verr *crawl.ValidationError
			if errors.As(err, &verr) {
				stats.Rejected++
				f.logger.Warn("rejecting crawl record", "origin", rec.Origin, "url", rec.URL, "error", err)
				return nil
			}
			return err
		}
		batch = append(batch, rec)
		if len(batch) >= f.batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}
	f.logger.Info("feed complete",
		"source", source.Name(),
		"read", stats.Read,
		"written", stats.Written,
		"rejected", stats.Rejected,
		"batches", stats.Batches,
		"duration", stats.Duration,
	)
	return stats, nil
}
