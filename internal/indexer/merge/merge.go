// Package merge combines partial shards into the final bucketed index. It
// streams every shard through a k-way heap keyed by term, so memory holds
// one block per open shard plus the postings of the term being merged.
package merge

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/errors"
)

// Input is one partial shard. DocBase is added to every doc id read from it,
// which maps chunk-local ids onto the global dense range.
type Input struct {
	Path    string
	DocBase int32
}

// CorruptShard records a shard whose remaining blocks were dropped.
type CorruptShard struct {
	Path   string
	Offset int64
	Reason string
}

// Stats describes a finished merge.
type Stats struct {
	Inputs        int
	Terms         int
	Postings      int64
	Buckets       []shard.BucketStats
	CorruptShards []CorruptShard
	Duration      time.Duration
}

// Merger writes the final index into one directory.
type Merger struct {
	outDir string
	logger *slog.Logger
}

func New(outDir string) *Merger {
	return &Merger{
		outDir: outDir,
		logger: slog.Default().With("component", "merger", "dir", outDir),
	}
}

// Run merges all inputs in a single pass. totalDocs is the final dense
// document count used for idf.
func (m *Merger) Run(ctx context.Context, inputs []Input, totalDocs int) (*Stats, error) {
	start := time.Now()
	set, err := shard.NewSet(m.outDir)
	if err != nil {
		return nil, err
	}
	p := &pass{inputs: inputs, totalDocs: totalDocs, keep: func(string) bool { return true }, emit: set.Append, logger: m.logger}
	if err := p.run(ctx); err != nil {
		set.Abort()
		return nil, err
	}
	return m.finish(set, []*pass{p}, len(inputs), start)
}

// RunParallel runs one pass per bucket, up to workers at a time. Each pass
// reads every shard but decodes only the blocks routed to its bucket.
func (m *Merger) RunParallel(ctx context.Context, inputs []Input, totalDocs, workers int) (*Stats, error) {
	start := time.Now()
	set, err := shard.NewSet(m.outDir)
	if err != nil {
		return nil, err
	}
	names := shard.Buckets()
	passes := make([]*pass, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, name := range names {
		w := set.Bucket(name)
		p := &pass{
			inputs:    inputs,
			totalDocs: totalDocs,
			keep:      func(term string) bool { return shard.BucketFor(term) == name },
			emit:      w.Append,
			logger:    m.logger.With("bucket", name),
		}
		passes[i] = p
		g.Go(func() error {
			return p.run(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		set.Abort()
		return nil, err
	}
	return m.finish(set, passes, len(inputs), start)
}

func (m *Merger) finish(set *shard.Set, passes []*pass, inputs int, start time.Time) (*Stats, error) {
	buckets, err := set.Finalize()
	if err != nil {
		return nil, err
	}
	stats := &Stats{Inputs: inputs, Buckets: buckets}
	seen := make(map[string]bool)
	for _, p := range passes {
		stats.Terms += p.terms
		stats.Postings += p.postings
		for _, c := range p.corrupt {
			// Parallel passes each trip over the same bad block.
			if !seen[c.Path] {
				seen[c.Path] = true
				stats.CorruptShards = append(stats.CorruptShards, c)
			}
		}
	}
	stats.Duration = time.Since(start)
	m.logger.Info("merge complete",
		"inputs", inputs,
		"terms", stats.Terms,
		"postings", stats.Postings,
		"corrupt_shards", len(stats.CorruptShards),
		"duration", stats.Duration,
	)
	return stats, nil
}

// pass is one streaming k-way merge over all inputs, restricted to the
// terms accepted by keep.
type pass struct {
	inputs    []Input
	totalDocs int
	keep      func(term string) bool
	emit      func(index.TermEntry) error
	logger    *slog.Logger

	terms    int
	postings int64
	corrupt  []CorruptShard
}

func (p *pass) run(ctx context.Context) error {
	h := make(cursorHeap, 0, len(p.inputs))
	defer func() {
		for _, c := range h {
			c.reader.Close()
		}
	}()
	for _, in := range p.inputs {
		r, err := segment.OpenReader(in.Path)
		if err != nil {
			return fmt.Errorf("opening shard: %w", err)
		}
		c := &cursor{reader: r, base: in.DocBase}
		ok, err := p.advance(c)
		if err != nil {
			r.Close()
			return err
		}
		if !ok {
			r.Close()
			continue
		}
		h = append(h, c)
	}
	heap.Init(&h)

	var acc index.PostingList
	for h.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		term := h[0].current.Term
		acc = acc[:0]
		for h.Len() > 0 && h[0].current.Term == term {
			c := h[0]
			for _, posting := range c.current.Postings {
				acc = append(acc, index.Posting{DocID: posting.DocID + c.base, Score: posting.Score})
			}
			ok, err := p.advance(c)
			if err != nil {
				return err
			}
			if ok {
				heap.Fix(&h, 0)
			} else {
				heap.Pop(&h)
				c.reader.Close()
			}
		}
		entry := index.TermEntry{Term: term, Postings: Score(acc, p.totalDocs)}
		if err := p.emit(entry); err != nil {
			return fmt.Errorf("writing merged term %q: %w", term, err)
		}
		p.terms++
		p.postings += int64(len(entry.Postings))
	}
	return nil
}

// advance moves c to its next wanted block. It reports false once the shard
// is exhausted or was dropped as corrupt; out-of-order terms are fatal.
func (p *pass) advance(c *cursor) (bool, error) {
	entry, err := c.reader.NextMatching(p.keep)
	switch {
	case err == nil:
		c.current = entry
		return true, nil
	case errors.Is(err, io.EOF):
		return false, nil
	case errors.Is(err, apperrors.ErrTermOrder):
		return false, fmt.Errorf("merging %s: %w", c.reader.Path(), err)
	case errors.Is(err, apperrors.ErrCorruptBlock):
		var blockErr *segment.BlockError
		offset := c.reader.Offset()
		if errors.As(err, &blockErr) {
			offset = blockErr.Offset
		}
		p.logger.Error("dropping corrupt shard", "path", c.reader.Path(), "offset", offset, "error", err)
		p.corrupt = append(p.corrupt, CorruptShard{Path: c.reader.Path(), Offset: offset, Reason: err.Error()})
		return false, nil
	default:
		return false, fmt.Errorf("reading %s: %w", c.reader.Path(), err)
	}
}

// Score turns accumulated raw counts into final postings: duplicates of a
// doc id are summed, then every count is multiplied by ln(totalDocs/df).
// The result is sorted by doc id.
func Score(acc index.PostingList, totalDocs int) index.PostingList {
	docs := roaring.New()
	for _, posting := range acc {
		docs.Add(uint32(posting.DocID))
	}
	df := docs.GetCardinality()
	idf := 0.0
	if df > 0 && totalDocs > 0 {
		idf = math.Log(float64(totalDocs) / float64(df))
	}

	sorted := make(index.PostingList, len(acc))
	copy(sorted, acc)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DocID < sorted[j].DocID })
	out := make(index.PostingList, 0, df)
	for _, posting := range sorted {
		if n := len(out); n > 0 && out[n-1].DocID == posting.DocID {
			out[n-1].Score += posting.Score
			continue
		}
		out = append(out, posting)
	}
	for i := range out {
		out[i].Score *= idf
	}
	return out
}
