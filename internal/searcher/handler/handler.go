// Package handler exposes the search HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/searcher/querylog"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
}

// Loader installs a new index directory.
type Loader interface {
	Load(dir string) error
}

type Handler struct {
	executor SearchExecutor
	analyzer *tokenizer.Analyzer
	cache    *cache.QueryCache
	queryLog *querylog.Collector
	metrics  *metrics.Metrics
	cfg      config.SearchConfig
	logger   *slog.Logger

	loader   Loader
	indexDir string
}

// Option customises a Handler.
type Option func(*Handler)

// WithCache serves repeated queries from c.
func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

// WithQueryLog tracks every answered search in c.
func WithQueryLog(c *querylog.Collector) Option {
	return func(h *Handler) { h.queryLog = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithReload enables POST /admin/reload, which loads dir through l.
func WithReload(l Loader, dir string) Option {
	return func(h *Handler) {
		h.loader = l
		h.indexDir = dir
	}
}

func New(exec SearchExecutor, analyzer *tokenizer.Analyzer, cfg config.SearchConfig, opts ...Option) *Handler {
	h := &Handler{
		executor: exec,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.CacheInvalidate)
	if h.loader != nil {
		mux.HandleFunc("POST /admin/reload", h.Reload)
	}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "search", middleware.GetRequestID(r.Context()))
	defer span.End()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	plan := parser.Parse(h.analyzer, query, parser.ParseMode(r.URL.Query().Get("mode")))
	parseSpan.SetAttr("terms", len(plan.Terms))
	parseSpan.End()
	span.SetAttr("mode", plan.Type.String())

	if len(plan.Terms) == 0 {
		result := executor.EmptyResult(plan)
		h.metrics.ObserveSearch("bypass", "zero_result", time.Since(start), 0)
		h.track(ctx, result, "bypass", time.Since(start))
		w.Header().Set("X-Cache", "bypass")
		h.writeJSON(w, http.StatusOK, result)
		return
	}

	compute := func() (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, plan, limit)
	}
	var result *executor.SearchResult
	cacheStatus := "disabled"
	if h.cache != nil {
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, plan, limit, compute)
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = compute()
	}
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		status := apperrors.HTTPStatusCode(err)
		log.Error("search failed", "query", query, "status", status, "error", err)
		h.metrics.ObserveSearch(cacheStatus, "error", elapsed, 0)
		h.writeError(w, status, "search failed")
		return
	}

	if result.Query != query {
		// Cached under the same analyzed terms by a differently spelled query.
		shared := *result
		shared.Query = query
		result = &shared
	}
	resultType := "results"
	if len(result.Results) == 0 {
		resultType = "zero_result"
	}
	h.metrics.ObserveSearch(cacheStatus, resultType, elapsed, len(result.Results))
	log.Info("search completed",
		"query", query,
		"mode", plan.Type.String(),
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache", cacheStatus,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.track(ctx, result, cacheStatus, elapsed)
	w.Header().Set("X-Cache", cacheStatus)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) track(ctx context.Context, result *executor.SearchResult, cacheStatus string, elapsed time.Duration) {
	if h.queryLog == nil {
		return
	}
	h.queryLog.Track(querylog.Event{
		Query:     result.Query,
		Mode:      result.Mode,
		Terms:     result.Terms,
		TotalHits: result.TotalHits,
		Returned:  len(result.Results),
		LatencyMs: elapsed.Milliseconds(),
		Cache:     cacheStatus,
		RequestID: middleware.GetRequestID(ctx),
		Timestamp: time.Now().UTC(),
	})
}

// parseLimit applies the default and clamps to MaxResults.
func (h *Handler) parseLimit(raw string) (int, error) {
	limit := h.cfg.DefaultLimit
	if raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return 0, errors.New("limit must be a positive integer")
		}
		limit = parsed
	}
	if h.cfg.MaxResults > 0 && limit > h.cfg.MaxResults {
		limit = h.cfg.MaxResults
	}
	return limit, nil
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "deleted": deleted})
}

// Reload re-opens the index directory, picking up a build published since
// the last load, and clears cached results.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.loader.Load(h.indexDir); err != nil {
		h.logger.Error("index reload failed", "dir", h.indexDir, "error", err)
		h.writeError(w, http.StatusInternalServerError, "index reload failed")
		return
	}
	if h.cache != nil {
		if _, err := h.cache.Invalidate(r.Context()); err != nil {
			h.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded", "dir": h.indexDir})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
