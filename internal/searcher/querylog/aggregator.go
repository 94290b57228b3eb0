package querylog

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	latencyWindow = 10000
	// maxTracked bounds the distinct queries counted; later novel queries
	// only show up in the totals.
	maxTracked = 50000
)

type Stats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AndQueries        int64        `json:"and_queries"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running search statistics. Latency percentiles cover
// the most recent searches only.
type Aggregator struct {
	mu          sync.Mutex
	total       int64
	cacheHits   int64
	cacheMisses int64
	zero        int64
	and         int64
	latencies   []int64
	next        int
	queries     map[string]int64
	zeroQueries map[string]int64
	start       time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:   make([]int64, 0, 1024),
		queries:     make(map[string]int64),
		zeroQueries: make(map[string]int64),
		start:       time.Now(),
	}
}

func normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Record adds one search.
func (a *Aggregator) Record(ev Event) {
	q := normalize(ev.Query)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	switch ev.Cache {
	case "hit":
		a.cacheHits++
	case "miss":
		a.cacheMisses++
	}
	if ev.Mode == "and" {
		a.and++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, ev.LatencyMs)
	} else {
		a.latencies[a.next] = ev.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
	bump(a.queries, q)
	if ev.TotalHits == 0 {
		a.zero++
		bump(a.zeroQueries, q)
	}
}

func bump(m map[string]int64, q string) {
	if _, ok := m[q]; ok || len(m) < maxTracked {
		m[q]++
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := Stats{
		TotalSearches:   a.total,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zero,
		AndQueries:      a.and,
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queries, 10)
	stats.ZeroResultQueries = topN(a.zeroQueries, 10)
	if minutes := time.Since(a.start).Minutes(); minutes > 0 {
		stats.QueriesPerMinute = float64(a.total) / minutes
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query ascending.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
