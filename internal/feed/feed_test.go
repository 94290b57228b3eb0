package feed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/crawl"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
)

type memorySink struct {
	batches [][]string
	fail    error
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Write(_ context.Context, batch []crawl.Record) error {
	if m.fail != nil {
		return m.fail
	}
	urls := make([]string, len(batch))
	for i, rec := range batch {
		urls[i] = rec.URL
	}
	m.batches = append(m.batches, urls)
	return nil
}

func page(url, body string) crawl.Record {
	return crawl.Record{URL: url, Content: []byte(body)}
}

func TestRunBatchesAndRejects(t *testing.T) {
	source := crawl.SliceSource{
		page("https://example.com/0", "<p>cat</p>"),
		page("ftp://example.com/1", "<p>dog</p>"),
		page("https://example.com/2", "<p>bird</p>"),
		page("https://example.com/3", "   "),
		page("https://example.com/4", "<p>fish</p>"),
		page("https://example.com/5", "<p>owl</p>"),
	}
	sink := &memorySink{}
	stats, err := New(sink, 2).Run(context.Background(), source)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"https://example.com/0", "https://example.com/2"},
		{"https://example.com/4", "https://example.com/5"},
	}
	if diff := cmp.Diff(want, sink.batches); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}
	if stats.Read != 6 || stats.Written != 4 || stats.Rejected != 2 || stats.Batches != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRunSinkFailure(t *testing.T) {
	boom := errors.New("broker down")
	sink := &memorySink{fail: boom}
	_, err := New(sink, 10).Run(context.Background(), crawl.SliceSource{page("https://example.com/0", "x")})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want broker down", err)
	}
}

type capturePublisher struct{ events []kafka.Event }

func (c *capturePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	c.events = append(c.events, events...)
	return nil
}

func TestKafkaSinkRoundTrip(t *testing.T) {
	pub := &capturePublisher{}
	sink := NewKafkaSink(pub, "crawl-records")
	rec := page("https://example.com/a?x=1&y=2", "<h1>Title</h1>")
	if err := sink.Write(context.Background(), []crawl.Record{rec}); err != nil {
		t.Fatal(err)
	}
	if len(pub.events) != 1 || pub.events[0].Key != rec.URL {
		t.Fatalf("events = %+v", pub.events)
	}
	got := crawl.DecodeRecord(pub.events[0].Value.([]byte), "test")
	if got.URL != rec.URL || string(got.Content) != string(rec.Content) {
		t.Errorf("decoded %+v, want %+v", got, rec)
	}
}

func TestPostgresSQL(t *testing.T) {
	if _, err := NewPostgresSink(nil, "pages; DROP TABLE x"); err == nil {
		t.Error("expected invalid table name error")
	}
	if !strings.Contains(upsertSQL("crawl.pages"), "INSERT INTO crawl.pages (url, content)") {
		t.Errorf("upsertSQL = %q", upsertSQL("crawl.pages"))
	}
	if !strings.Contains(createTableSQL("pages"), "url        TEXT NOT NULL UNIQUE") {
		t.Errorf("createTableSQL = %q", createTableSQL("pages"))
	}
}
