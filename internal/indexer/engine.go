// Package indexer drives a full index build: it fans crawl records out to
// chunk workers, joins their partial shards, resolves anchor text, merges
// everything into the bucketed index and swaps the result into place.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/crawl"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/builder"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/docmap"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/metrics"
)

// Notifier announces finished builds. *kafka.Producer satisfies it.
type Notifier interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// BuildStats summarises one build.
type BuildStats struct {
	BuildID         string
	Records         int
	Documents       int
	Skipped         int
	Chunks          int
	PartialShards   int
	AnchorsResolved int
	AnchorsDropped  int
	Terms           int
	Postings        int64
	CorruptShards   []merge.CorruptShard
	IngestDuration  time.Duration
	MergeDuration   time.Duration
	TotalDuration   time.Duration
}

type Engine struct {
	cfg      config.IndexerConfig
	analyzer *tokenizer.Analyzer
	metrics  *metrics.Metrics
	notifier Notifier
	logger   *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func NewEngine(cfg config.IndexerConfig, analysis config.AnalysisConfig, opts ...Option) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = cfg.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	e := &Engine{
		cfg:      cfg,
		analyzer: tokenizer.New(analysis),
		logger:   slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type chunk struct {
	index   int
	records []crawl.Record
}

// Build indexes everything source yields and publishes the result under
// the configured index directory. A failed build leaves the previous index
// untouched.
func (e *Engine) Build(ctx context.Context, source crawl.Source) (*BuildStats, error) {
	start := time.Now()
	stats := &BuildStats{BuildID: uuid.NewString()}
	logger := e.logger.With("build_id", stats.BuildID)
	logger.Info("index build starting", "source", source.Name(), "workers", e.cfg.Workers, "chunk_size", e.cfg.ChunkSize)

	partialDir := filepath.Join(e.cfg.PartialDir(), stats.BuildID)
	stagingDir := e.cfg.IndexDir() + ".staging-" + stats.BuildID
	if err := os.MkdirAll(partialDir, 0755); err != nil {
		return nil, fmt.Errorf("creating partial directory: %w", err)
	}
	defer func() {
		if !e.cfg.KeepPartials {
			os.RemoveAll(partialDir)
		}
		os.RemoveAll(stagingDir)
	}()

	results, err := e.ingest(ctx, source, partialDir)
	if err != nil {
		return nil, fmt.Errorf("ingesting %s: %w", source.Name(), err)
	}
	stats.IngestDuration = time.Since(start)
	e.metrics.ObservePhase("ingest", stats.IngestDuration)

	inputs, docs, anchors := e.join(results, stats)
	if stats.Documents == 0 {
		logger.Warn("source produced no indexable documents", "records", stats.Records)
	}

	anchorPath, resolved, dropped, err := builder.WriteAnchorShard(partialDir, anchors, docs.Reverse())
	if err != nil {
		return nil, err
	}
	stats.AnchorsResolved, stats.AnchorsDropped = resolved, dropped
	if anchorPath != "" {
		inputs = append(inputs, merge.Input{Path: anchorPath})
	}

	mergeStart := time.Now()
	merger := merge.New(stagingDir)
	var mstats *merge.Stats
	if e.cfg.ParallelMerge {
		mstats, err = merger.RunParallel(ctx, inputs, docs.Len(), e.cfg.Workers)
	} else {
		mstats, err = merger.Run(ctx, inputs, docs.Len())
	}
	if err != nil {
		return nil, fmt.Errorf("merging partial shards: %w", err)
	}
	stats.Terms = mstats.Terms
	stats.Postings = mstats.Postings
	stats.CorruptShards = mstats.CorruptShards
	stats.MergeDuration = time.Since(mergeStart)
	e.metrics.ObservePhase("merge", stats.MergeDuration)
	e.metrics.ObserveMerge(mstats.Terms, len(mstats.CorruptShards))

	if err := docs.Write(stagingDir); err != nil {
		return nil, err
	}
	if err := publish(stagingDir, e.cfg.IndexDir()); err != nil {
		return nil, err
	}
	stats.TotalDuration = time.Since(start)
	logger.Info("index build complete",
		"records", stats.Records,
		"documents", stats.Documents,
		"skipped", stats.Skipped,
		"partial_shards", stats.PartialShards,
		"anchors_resolved", stats.AnchorsResolved,
		"anchors_dropped", stats.AnchorsDropped,
		"terms", stats.Terms,
		"postings", stats.Postings,
		"corrupt_shards", len(stats.CorruptShards),
		"duration", stats.TotalDuration,
	)
	e.notify(ctx, stats)
	return stats, nil
}

// ingest splits the stream into contiguous chunks and builds each on a
// worker. Chunk order, not completion order, decides doc ids later.
func (e *Engine) ingest(ctx context.Context, source crawl.Source, dir string) ([]*builder.Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan chunk, e.cfg.Workers)

	g.Go(func() error {
		defer close(chunks)
		next := chunk{records: make([]crawl.Record, 0, e.cfg.ChunkSize)}
		send := func() error {
			select {
			case chunks <- next:
			case <-gctx.Done():
				return gctx.Err()
			}
			next = chunk{index: next.index + 1, records: make([]crawl.Record, 0, e.cfg.ChunkSize)}
			return nil
		}
		err := source.Records(gctx, func(rec crawl.Record) error {
			next.records = append(next.records, rec)
			if len(next.records) >= e.cfg.ChunkSize {
				return send()
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(next.records) > 0 {
			return send()
		}
		return nil
	})

	var (
		mu      sync.Mutex
		results []*builder.Result
	)
	for w := 0; w < e.cfg.Workers; w++ {
		g.Go(func() error {
			for c := range chunks {
				b := builder.New(e.analyzer, dir, c.index, e.cfg.BatchSize)
				for _, rec := range c.records {
					if err := b.Add(rec); err != nil {
						return err
					}
				}
				res, err := b.Finish()
				if err != nil {
					return err
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
				if err := gctx.Err(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Chunk < results[j].Chunk })
	return results, nil
}

// join rebases every chunk onto the global id range: a chunk's base is the
// number of documents indexed by all chunks before it.
func (e *Engine) join(results []*builder.Result, stats *BuildStats) ([]merge.Input, *docmap.Map, builder.AnchorMap) {
	var (
		inputs  []merge.Input
		urls    []string
		anchors = make(builder.AnchorMap)
	)
	for _, res := range results {
		base := int32(len(urls))
		for _, path := range res.Shards {
			inputs = append(inputs, merge.Input{Path: path, DocBase: base})
		}
		urls = append(urls, res.URLs...)
		anchors.Merge(res.Anchors)
		stats.Records += res.Stats.Records
		stats.Skipped += res.Stats.Skipped
		stats.PartialShards += res.Stats.Shards
	}
	stats.Chunks = len(results)
	stats.Documents = len(urls)
	e.metrics.ObserveIngest(stats.Documents, stats.Skipped, stats.PartialShards)
	return inputs, docmap.New(urls), anchors
}

// publish swaps staging in as the live index directory. Open file handles
// on the previous index stay valid until their readers close them.
func publish(staging, live string) error {
	old := live + ".old"
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("clearing previous index backup: %w", err)
	}
	if err := os.Rename(live, old); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("retiring previous index: %w", err)
	}
	if err := os.Rename(staging, live); err != nil {
		os.Rename(old, live)
		return fmt.Errorf("publishing index: %w", err)
	}
	os.RemoveAll(old)
	return nil
}

func (e *Engine) notify(ctx context.Context, stats *BuildStats) {
	if e.notifier == nil {
		return
	}
	dir, err := filepath.Abs(e.cfg.IndexDir())
	if err != nil {
		dir = e.cfg.IndexDir()
	}
	event := CompletionEvent{
		BuildID:   stats.BuildID,
		Dir:       dir,
		Documents: stats.Documents,
		Terms:     stats.Terms,
		BuiltAt:   time.Now().UTC(),
	}
	if err := e.notifier.Publish(ctx, kafka.Event{Key: stats.BuildID, Value: event}); err != nil {
		e.logger.Warn("failed to announce finished build", "build_id", stats.BuildID, "error", err)
	}
}
