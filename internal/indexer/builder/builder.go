// Package builder turns one contiguous chunk of crawl records into partial
// shards. Doc ids are chunk-local and dense: the n-th record that tokenizes
// successfully gets id n. The engine rebases them when it merges.
package builder

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/crawl"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/errors"
)

// Stats counts what happened to a chunk's records.
type Stats struct {
	Records  int
	Indexed  int
	Skipped  int
	Postings int64
	Shards   int
}

// Result is what a finished chunk hands back to the coordinator.
type Result struct {
	Chunk   int
	URLs    []string
	Shards  []string
	Anchors AnchorMap
	Stats   Stats
}

// Builder accumulates one chunk. It is not safe for concurrent use; each
// worker owns its own.
type Builder struct {
	analyzer  *tokenizer.Analyzer
	dir       string
	chunk     int
	batchSize int
	mem       *index.MemoryIndex
	urls      []string
	shards    []string
	anchors   AnchorMap
	stats     Stats
	logger    *slog.Logger
}

// New creates a builder that writes partial shards into dir, flushing every
// batchSize documents.
func New(analyzer *tokenizer.Analyzer, dir string, chunk, batchSize int) *Builder {
	if batchSize <= 0 {
		batchSize = 50000
	}
	return &Builder{
		analyzer:  analyzer,
		dir:       dir,
		chunk:     chunk,
		batchSize: batchSize,
		mem:       index.NewMemoryIndex(),
		anchors:   make(AnchorMap),
		logger:    slog.Default().With("component", "builder", "chunk", chunk),
	}
}

// Add tokenizes one record. Invalid or empty records are skipped without an
// id. The only error is a failed shard flush, which is fatal to the build.
func (b *Builder) Add(rec crawl.Record) error {
	b.stats.Records++
	if err := crawl.Validate(rec); err != nil {
		b.skip(rec, err)
		return nil
	}
	features, err := b.analyzer.Document(rec.URL, rec.Content)
	if err != nil {
		b.skip(rec, err)
		return nil
	}
	docID := int32(len(b.urls))
	b.urls = append(b.urls, rec.URL)
	b.mem.AddDocument(docID, features.Terms)
	b.anchors.Add(features.Anchors)
	b.stats.Indexed++
	if b.mem.DocCount() >= b.batchSize {
		return b.flush()
	}
	return nil
}

func (b *Builder) skip(rec crawl.Record, reason error) {
	b.stats.Skipped++
	if errors.Is(reason, apperrors.ErrNoContent) {
		b.logger.Debug("record has no indexable text", "origin", rec.Origin, "url", rec.URL)
		return
	}
	b.logger.Debug("skipping record", "origin", rec.Origin, "reason", reason)
}

func (b *Builder) flush() error {
	if b.mem.Terms() == 0 {
		b.mem.Reset()
		return nil
	}
	path := filepath.Join(b.dir, fmt.Sprintf("chunk-%05d-%04d.bin", b.chunk, len(b.shards)))
	entries := b.mem.Snapshot()
	size, err := segment.WriteEntries(path, entries)
	if err != nil {
		return fmt.Errorf("flushing chunk %d batch %d: %w", b.chunk, len(b.shards), err)
	}
	b.stats.Postings += b.mem.Postings()
	b.stats.Shards++
	b.shards = append(b.shards, path)
	b.logger.Info("partial shard flushed",
		"path", path,
		"docs", b.mem.DocCount(),
		"terms", len(entries),
		"bytes", size,
	)
	b.mem.Reset()
	return nil
}

// Finish flushes the last batch and returns the chunk result.
func (b *Builder) Finish() (*Result, error) {
	if err := b.flush(); err != nil {
		return nil, err
	}
	return &Result{
		Chunk:   b.chunk,
		URLs:    b.urls,
		Shards:  b.shards,
		Anchors: b.anchors,
		Stats:   b.stats,
	}, nil
}
