package builder

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/crawl"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/docmap"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
)

func analyzer() *tokenizer.Analyzer {
	return tokenizer.New(config.AnalysisConfig{})
}

func page(url, body string) crawl.Record {
	return crawl.Record{URL: url, Content: []byte(body), Origin: url}
}

func readShard(t *testing.T, path string) []index.TermEntry {
	t.Helper()
	r, err := segment.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	var out []index.TermEntry
	for {
		e, err := r.Next()
		if err != nil {
			break
		}
		out = append(out, e)
	}
	return out
}

func TestBuilderBatchesAndSkips(t *testing.T) {
	dir := t.TempDir()
	b := New(analyzer(), dir, 3, 2)
	records := []crawl.Record{
		page("https://a.example/", "<p>cat</p>"),
		page("", "<p>orphan</p>"),
		page("https://b.example/", "<script>var x</script>"),
		page("https://c.example/", "<p>dog</p>"),
		page("https://d.example/", "<p>cat dog</p>"),
	}
	for _, rec := range records {
		if err := b.Add(rec); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	res, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	wantURLs := []string{"https://a.example/", "https://c.example/", "https://d.example/"}
	if diff := cmp.Diff(wantURLs, res.URLs); diff != "" {
		t.Errorf("URLs mismatch (-want +got):\n%s", diff)
	}
	if res.Stats.Records != 5 || res.Stats.Indexed != 3 || res.Stats.Skipped != 2 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if len(res.Shards) != 2 {
		t.Fatalf("shards = %v, want 2", res.Shards)
	}

	first := readShard(t, res.Shards[0])
	want := []index.TermEntry{
		{Term: "cat", Postings: index.PostingList{{DocID: 0, Score: 1}}},
		{Term: "dog", Postings: index.PostingList{{DocID: 1, Score: 1}}},
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("first shard mismatch (-want +got):\n%s", diff)
	}
	second := readShard(t, res.Shards[1])
	if len(second) != 2 || second[0].Postings[0].DocID != 2 {
		t.Errorf("second shard = %+v", second)
	}
}

func TestBuilderEmptyChunk(t *testing.T) {
	b := New(analyzer(), t.TempDir(), 0, 10)
	res, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Shards) != 0 || len(res.URLs) != 0 {
		t.Errorf("empty chunk produced %+v", res)
	}
}

func TestAnchorsAttributedToTarget(t *testing.T) {
	dir := t.TempDir()
	b := New(analyzer(), dir, 0, 100)
	recs := []crawl.Record{
		page("https://example.com/a", `<p>intro <a href="/b">great resource</a> <a href="https://elsewhere.example/">gone</a></p>`),
		page("https://example.com/b", `<p>content</p>`),
	}
	for _, rec := range recs {
		if err := b.Add(rec); err != nil {
			t.Fatal(err)
		}
	}
	res, err := b.Finish()
	if err != nil {
		t.Fatal(err)
	}
	reverse := docmap.New(res.URLs).Reverse()
	path, resolved, dropped, err := WriteAnchorShard(dir, res.Anchors, reverse)
	if err != nil {
		t.Fatalf("WriteAnchorShard: %v", err)
	}
	if resolved != 1 || dropped != 1 {
		t.Errorf("resolved=%d dropped=%d, want 1 and 1", resolved, dropped)
	}
	got := readShard(t, path)
	want := []index.TermEntry{
		{Term: "great", Postings: index.PostingList{{DocID: 1, Score: 1}}},
		{Term: "resourc", Postings: index.PostingList{{DocID: 1, Score: 1}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("anchor shard mismatch (-want +got):\n%s", diff)
	}

	for _, e := range readShard(t, res.Shards[0]) {
		if e.Term == "great" || e.Term == "resourc" {
			t.Errorf("anchor term %q indexed on the linking page", e.Term)
		}
	}
}

func TestAnchorMapMerge(t *testing.T) {
	a := AnchorMap{}
	a.Add(map[string][]string{"https://x.example/#top": {"fast", "fast"}})
	b := AnchorMap{}
	b.Add(map[string][]string{"https://x.example/": {"fast", "car"}})
	a.Merge(b)
	want := AnchorMap{"https://x.example/": {"fast": 3, "car": 1}}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("merged anchors mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteAnchorShardNothingResolved(t *testing.T) {
	m := AnchorMap{"https://nowhere.example/": {"x": 1}}
	path, resolved, dropped, err := WriteAnchorShard(t.TempDir(), m, map[string]int32{})
	if err != nil || path != "" || resolved != 0 || dropped != 1 {
		t.Errorf("WriteAnchorShard = %q, %d, %d, %v", path, resolved, dropped, err)
	}
}
