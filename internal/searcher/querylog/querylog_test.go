package querylog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
)

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	events := []Event{
		{Query: "Cat", Mode: "or", TotalHits: 2, LatencyMs: 10, Cache: "miss"},
		{Query: "cat", Mode: "or", TotalHits: 2, LatencyMs: 20, Cache: "hit"},
		{Query: "  dog  ", Mode: "and", TotalHits: 1, LatencyMs: 30, Cache: "miss"},
		{Query: "unicorn", Mode: "or", TotalHits: 0, LatencyMs: 40, Cache: "disabled"},
	}
	for _, ev := range events {
		a.Record(ev)
	}
	s := a.Stats()
	if s.TotalSearches != 4 || s.CacheHits != 1 || s.CacheMisses != 2 || s.ZeroResultCount != 1 || s.AndQueries != 1 {
		t.Errorf("counters = %+v", s)
	}
	if s.AvgLatencyMs != 25 || s.P50LatencyMs != 30 || s.P99LatencyMs != 40 {
		t.Errorf("latency = avg %v p50 %d p99 %d", s.AvgLatencyMs, s.P50LatencyMs, s.P99LatencyMs)
	}
	wantTop := []QueryCount{{"cat", 2}, {"dog", 1}, {"unicorn", 1}}
	if diff := cmp.Diff(wantTop, s.TopQueries); diff != "" {
		t.Errorf("top queries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]QueryCount{{"unicorn", 1}}, s.ZeroResultQueries); diff != "" {
		t.Errorf("zero-result queries mismatch (-want +got):\n%s", diff)
	}
}

func TestLatencyWindow(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < latencyWindow+10; i++ {
		a.Record(Event{Query: "q", TotalHits: 1, LatencyMs: int64(i)})
	}
	if len(a.latencies) != latencyWindow {
		t.Fatalf("window holds %d samples, want %d", len(a.latencies), latencyWindow)
	}
	if s := a.Stats(); s.TotalSearches != latencyWindow+10 {
		t.Errorf("TotalSearches = %d", s.TotalSearches)
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestCollectorFlushesOnShutdown(t *testing.T) {
	pub := &recordingPublisher{}
	agg := NewAggregator()
	c := NewCollector(pub, agg, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	for i := 0; i < 3; i++ {
		c.Track(Event{Query: "cat", TotalHits: 1})
	}
	cancel()
	c.Close()
	if got := pub.count(); got != 3 {
		t.Errorf("published %d events, want 3", got)
	}
	if agg.Stats().TotalSearches != 3 {
		t.Errorf("aggregator saw %d searches", agg.Stats().TotalSearches)
	}
}

func TestCollectorRequeuesFailedBatch(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewCollector(pub, nil, 2, time.Hour)
	c.mu.Lock()
	for i := 0; i < 7; i++ {
		c.buffer = append(c.buffer, kafka.Event{Key: "q"})
	}
	c.mu.Unlock()
	c.flush(context.Background())
	if got := c.BufferLen(); got != 6 {
		t.Errorf("BufferLen after failed flush = %d, want 6", got)
	}
	pub.err = nil
	c.flush(context.Background())
	if got := pub.count(); got != 6 {
		t.Errorf("published %d events after recovery, want 6", got)
	}
}

func TestCollectorWithoutPublisher(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(nil, agg, 1, 0)
	c.Start(context.Background())
	c.Track(Event{Query: "cat"})
	c.Close()
	if c.BufferLen() != 0 || agg.Stats().TotalSearches != 1 {
		t.Errorf("buffer %d, searches %d", c.BufferLen(), agg.Stats().TotalSearches)
	}
}

func TestStatsHandler(t *testing.T) {
	a := NewAggregator()
	a.Record(Event{Query: "cat", TotalHits: 1, LatencyMs: 5})
	rec := httptest.NewRecorder()
	StatsHandler(a)(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	var got Stats
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.TotalSearches != 1 || len(got.TopQueries) != 1 {
		t.Errorf("stats = %+v", got)
	}
}
