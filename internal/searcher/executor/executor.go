// Package executor answers parsed queries against the loaded index and
// swaps in freshly built indexes without interrupting queries.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/tracing"
)

type SearchResult struct {
	Query     string             `json:"query"`
	Mode      string             `json:"mode"`
	Terms     []string           `json:"terms"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats,omitempty"`
}

// EmptyResult is the answer to a query with no searchable terms.
func EmptyResult(plan *parser.QueryPlan) *SearchResult {
	return &SearchResult{
		Query:   plan.RawQuery,
		Mode:    plan.Type.String(),
		Terms:   plan.Terms,
		Results: []ranker.ScoredDoc{},
	}
}

type Executor struct {
	current atomic.Pointer[Index]
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	swapMu  sync.Mutex
}

func New(cfg config.SearchConfig, m *metrics.Metrics) *Executor {
	if cfg.LookupConcurrency <= 0 {
		cfg.LookupConcurrency = 8
	}
	return &Executor{
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// Load opens dir and makes it the served index. The previous index is
// closed once its in-flight queries finish. On error the previous index
// keeps serving.
func (e *Executor) Load(dir string) error {
	e.swapMu.Lock()
	defer e.swapMu.Unlock()
	start := time.Now()
	ix, err := Open(dir)
	e.metrics.IndexLoaded(docsOf(ix), err)
	if err != nil {
		return fmt.Errorf("loading index %s: %w", dir, err)
	}
	old := e.current.Swap(ix)
	e.logger.Info("index loaded",
		"dir", dir,
		"documents", ix.Docs(),
		"terms", ix.Terms(),
		"duration", time.Since(start),
	)
	if old != nil {
		if err := old.Close(); err != nil {
			e.logger.Warn("closing previous index", "dir", old.Dir(), "error", err)
		}
	}
	return nil
}

func docsOf(ix *Index) int {
	if ix == nil {
		return 0
	}
	return ix.Docs()
}

// Generation reports the served index's generation, or "" when none is
// loaded.
func (e *Executor) Generation() string {
	if ix := e.current.Load(); ix != nil {
		return ix.Generation()
	}
	return ""
}

// Loaded reports whether an index is being served.
func (e *Executor) Loaded() bool {
	return e.current.Load() != nil
}

// Close stops serving and releases the index files.
func (e *Executor) Close() error {
	e.swapMu.Lock()
	defer e.swapMu.Unlock()
	if ix := e.current.Swap(nil); ix != nil {
		return ix.Close()
	}
	return nil
}

func (e *Executor) acquire() (*Index, error) {
	for {
		ix := e.current.Load()
		if ix == nil {
			return nil, apperrors.ErrIndexNotOpen
		}
		if ix.acquire() {
			return ix, nil
		}
		// Closed between Load and acquire: a newer index is already in place.
	}
}

// Execute looks up every plan term and ranks the union of their postings.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if len(plan.Terms) == 0 {
		return EmptyResult(plan), nil
	}
	ix, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer ix.release()

	lctx, span := tracing.StartChildSpan(ctx, "lookup")
	lists, err := e.lookupAll(lctx, ix, plan.Terms)
	span.SetAttr("terms", len(plan.Terms))
	span.End()
	if err != nil {
		return nil, err
	}

	_, span = tracing.StartChildSpan(ctx, "rank")
	defer span.End()
	scores := ranker.Aggregate(lists)
	var allow *roaring.Bitmap
	if plan.Type == parser.QueryAND {
		unigrams := plan.Unigrams()
		required := make([]index.PostingList, len(unigrams))
		for i, term := range unigrams {
			required[i] = lists[indexOf(plan.Terms, term)]
		}
		allow = ranker.Intersect(required)
	}
	result := EmptyResult(plan)
	result.TotalHits = ranker.Matches(scores, allow)
	result.Results = ranker.Rank(scores, allow, limit)
	result.TermStats = make(map[string]int, len(plan.Terms))
	for i, term := range plan.Terms {
		result.TermStats[term] = len(lists[i])
	}
	for i := range result.Results {
		result.Results[i].URL, _ = ix.URL(result.Results[i].DocID)
	}
	span.SetAttr("hits", result.TotalHits)
	return result, nil
}

// lookupAll reads every term's block concurrently; lists[i] belongs to
// terms[i].
func (e *Executor) lookupAll(ctx context.Context, ix *Index, terms []string) ([]index.PostingList, error) {
	lists := make([]index.PostingList, len(terms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.LookupConcurrency)
	for i, term := range terms {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			postings, found, err := ix.Lookup(term)
			e.metrics.TermLookup(found)
			if err != nil {
				e.logger.Error("term lookup failed", "term", term, "error", err)
				return err
			}
			lists[i] = postings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

func indexOf(terms []string, term string) int {
	for i, t := range terms {
		if t == term {
			return i
		}
	}
	return -1
}
