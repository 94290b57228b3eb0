package indexer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/crawl"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/docmap"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
)

type recordingNotifier struct {
	events []kafka.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event kafka.Event) error {
	r.events = append(r.events, event)
	return nil
}

func testConfig(t *testing.T, workers, chunk int) config.IndexerConfig {
	return config.IndexerConfig{
		DataDir:   t.TempDir(),
		BatchSize: 1,
		ChunkSize: chunk,
		Workers:   workers,
	}
}

func postings(t *testing.T, dir, term string) index.PostingList {
	t.Helper()
	bucket := shard.BucketFor(term)
	dict, err := shard.LoadDictionary(shard.DictionaryPath(dir, bucket))
	if err != nil {
		t.Fatal(err)
	}
	offset, ok := dict[term]
	if !ok {
		return nil
	}
	f, err := os.Open(shard.PostingsPath(dir, bucket))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	entry, err := segment.ReadBlockAt(f, offset)
	if err != nil {
		t.Fatal(err)
	}
	return entry.Postings
}

func page(url, body string) crawl.Record {
	return crawl.Record{URL: url, Content: []byte(body)}
}

func TestBuildTwoDocumentCorpus(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		cfg := testConfig(t, 3, 1)
		cfg.ParallelMerge = parallel
		source := crawl.SliceSource{
			page("https://example.com/0", "<p>cat dog cat</p>"),
			page("", "<p>skipped</p>"),
			page("https://example.com/1", "<p>dog bird</p>"),
		}
		stats, err := NewEngine(cfg, config.AnalysisConfig{}).Build(context.Background(), source)
		if err != nil {
			t.Fatalf("Build(parallel=%v): %v", parallel, err)
		}
		if stats.Records != 3 || stats.Documents != 2 || stats.Skipped != 1 || stats.Chunks != 3 {
			t.Errorf("stats = %+v", stats)
		}

		dir := cfg.IndexDir()
		docs, err := docmap.Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		if u, _ := docs.URL(1); u != "https://example.com/1" {
			t.Errorf("doc 1 = %q", u)
		}

		approx := cmpopts.EquateApprox(0, 1e-12)
		want := map[string]index.PostingList{
			"cat":  {{DocID: 0, Score: 2 * math.Ln2}},
			"dog":  {{DocID: 0, Score: 0}, {DocID: 1, Score: 0}},
			"bird": {{DocID: 1, Score: math.Ln2}},
		}
		for term, w := range want {
			if diff := cmp.Diff(w, postings(t, dir, term), approx); diff != "" {
				t.Errorf("parallel=%v %s mismatch (-want +got):\n%s", parallel, term, diff)
			}
		}
		entries, _ := os.ReadDir(cfg.PartialDir())
		if len(entries) != 0 {
			t.Errorf("partial shards left behind: %v", entries)
		}
	}
}

func TestBuildResolvesAnchorsAcrossChunks(t *testing.T) {
	cfg := testConfig(t, 2, 1)
	notifier := &recordingNotifier{}
	source := crawl.SliceSource{
		page("https://example.com/a", `<p>home <a href="/b">great resource</a></p>`),
		page("https://example.com/b", `<p>content</p>`),
	}
	stats, err := NewEngine(cfg, config.AnalysisConfig{}, WithNotifier(notifier)).Build(context.Background(), source)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.AnchorsResolved != 1 {
		t.Errorf("AnchorsResolved = %d, want 1", stats.AnchorsResolved)
	}
	dir := cfg.IndexDir()
	for _, term := range []string{"great", "resourc"} {
		got := postings(t, dir, term)
		if len(got) != 1 || got[0].DocID != 1 {
			t.Errorf("%s postings = %v, want doc 1 only", term, got)
		}
	}
	if len(notifier.events) != 1 {
		t.Fatalf("events = %d, want 1", len(notifier.events))
	}
	event, ok := notifier.events[0].Value.(CompletionEvent)
	if !ok || event.Documents != 2 || event.BuildID != stats.BuildID {
		t.Errorf("event = %+v", notifier.events[0].Value)
	}
}

// densityCorpus mixes valid pages, both kinds of skipped record and links
// between pages that land in different chunks.
func densityCorpus() (crawl.SliceSource, []string) {
	var source crawl.SliceSource
	var valid []string
	for i := 0; i < 60; i++ {
		url := fmt.Sprintf("https://example.com/%d", i)
		switch {
		case i%7 == 3:
			source = append(source, page(url, "<script>var x = 1</script>"))
		case i%11 == 5:
			source = append(source, page("", "<p>orphan</p>"))
		default:
			target := fmt.Sprintf("https://example.com/%d", (i*13+5)%60)
			body := fmt.Sprintf(`<p>word%d shared term%d</p><a href="%s">link text%d</a>`, i%5, i%3, target, i%4)
			source = append(source, page(url, body))
			valid = append(valid, url)
		}
	}
	return source, valid
}

func allPostings(t *testing.T, dir string) map[string]index.PostingList {
	t.Helper()
	out := make(map[string]index.PostingList)
	for _, bucket := range shard.Buckets() {
		dict, err := shard.LoadDictionary(shard.DictionaryPath(dir, bucket))
		if err != nil {
			t.Fatal(err)
		}
		f, err := os.Open(shard.PostingsPath(dir, bucket))
		if err != nil {
			t.Fatal(err)
		}
		for term, offset := range dict {
			entry, err := segment.ReadBlockAt(f, offset)
			if err != nil {
				f.Close()
				t.Fatalf("%s: %v", term, err)
			}
			out[term] = entry.Postings
		}
		f.Close()
	}
	return out
}

func TestBuildIsIndependentOfBatchingAndWorkers(t *testing.T) {
	source, valid := densityCorpus()
	cases := []struct {
		workers, chunk, batch int
		parallel              bool
	}{
		{1, 1000, 1000, false},
		{4, 1, 1, true},
		{3, 7, 2, false},
		{2, 13, 5, true},
		{8, 3, 50, false},
	}
	approx := cmpopts.EquateApprox(0, 1e-9)
	var reference map[string]index.PostingList
	for _, tc := range cases {
		name := fmt.Sprintf("workers=%d/chunk=%d/batch=%d/parallel=%v", tc.workers, tc.chunk, tc.batch, tc.parallel)
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t, tc.workers, tc.chunk)
			cfg.BatchSize = tc.batch
			cfg.ParallelMerge = tc.parallel
			stats, err := NewEngine(cfg, config.AnalysisConfig{NGramSizes: []int{2}}).Build(context.Background(), source)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if stats.Documents != len(valid) || stats.Documents+stats.Skipped != len(source) {
				t.Errorf("stats = %+v, want %d documents of %d records", stats, len(valid), len(source))
			}

			docs, err := docmap.Load(cfg.IndexDir())
			if err != nil {
				t.Fatal(err)
			}
			urls := make([]string, docs.Len())
			for id := range urls {
				urls[id], _ = docs.URL(int32(id))
			}
			if diff := cmp.Diff(valid, urls); diff != "" {
				t.Errorf("doc ids are not dense in input order (-want +got):\n%s", diff)
			}

			got := allPostings(t, cfg.IndexDir())
			for term, list := range got {
				for _, p := range list {
					if p.DocID < 0 || int(p.DocID) >= len(valid) {
						t.Fatalf("%s: doc id %d outside 0..%d", term, p.DocID, len(valid)-1)
					}
				}
			}
			if reference == nil {
				reference = got
				return
			}
			if diff := cmp.Diff(reference, got, approx); diff != "" {
				t.Errorf("postings differ from the first layout (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildNGrams(t *testing.T) {
	cfg := testConfig(t, 1, 10)
	source := crawl.SliceSource{
		page("https://example.com/0", "<p>machine learning</p>"),
		page("https://example.com/1", "<p>learning machine</p>"),
	}
	_, err := NewEngine(cfg, config.AnalysisConfig{NGramSizes: []int{2}}).Build(context.Background(), source)
	if err != nil {
		t.Fatal(err)
	}
	got := postings(t, cfg.IndexDir(), "machin_learn")
	if len(got) != 1 || got[0].DocID != 0 {
		t.Errorf("machin_learn postings = %v", got)
	}
	if got := postings(t, cfg.IndexDir(), "learn_machin"); len(got) != 1 || got[0].DocID != 1 {
		t.Errorf("learn_machin postings = %v", got)
	}
}

func TestBuildReplacesPreviousIndex(t *testing.T) {
	cfg := testConfig(t, 1, 10)
	engine := NewEngine(cfg, config.AnalysisConfig{})
	if _, err := engine.Build(context.Background(), crawl.SliceSource{page("https://example.com/0", "<p>old</p>")}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Build(context.Background(), crawl.SliceSource{page("https://example.com/0", "<p>new</p>")}); err != nil {
		t.Fatal(err)
	}
	if got := postings(t, cfg.IndexDir(), "old"); got != nil {
		t.Errorf("old term survived rebuild: %v", got)
	}
	if got := postings(t, cfg.IndexDir(), "new"); len(got) != 1 {
		t.Errorf("new postings = %v", got)
	}
	leftovers, _ := filepath.Glob(cfg.IndexDir() + ".*")
	if len(leftovers) != 0 {
		t.Errorf("staging or backup directories left: %v", leftovers)
	}
}

type failingSource struct{}

func (failingSource) Name() string { return "failing" }

func (failingSource) Records(ctx context.Context, emit crawl.EmitFunc) error {
	if err := emit(page("https://example.com/0", "<p>x</p>")); err != nil {
		return err
	}
	return errors.New("broker went away")
}

func TestBuildSourceErrorKeepsPreviousIndex(t *testing.T) {
	cfg := testConfig(t, 2, 1)
	engine := NewEngine(cfg, config.AnalysisConfig{})
	if _, err := engine.Build(context.Background(), crawl.SliceSource{page("https://example.com/0", "<p>kept</p>")}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Build(context.Background(), failingSource{}); err == nil {
		t.Fatal("expected build error")
	}
	if got := postings(t, cfg.IndexDir(), "kept"); len(got) != 1 {
		t.Errorf("previous index damaged: kept = %v", got)
	}
}
