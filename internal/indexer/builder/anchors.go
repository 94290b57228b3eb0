package builder

import (
	"fmt"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/tokenizer"
)

// AnchorMap collects anchor text by target page: canonical target URL to a
// multiset of anchor terms. Each worker owns one; they are merged at join.
type AnchorMap map[string]map[string]float64

// Add records one page's anchor fragments.
func (m AnchorMap) Add(fragments map[string][]string) {
	for target, terms := range fragments {
		key := tokenizer.CanonicalURL(target)
		counts := m[key]
		if counts == nil {
			counts = make(map[string]float64, len(terms))
			m[key] = counts
		}
		for _, term := range terms {
			counts[term]++
		}
	}
}

// Merge folds other into m.
func (m AnchorMap) Merge(other AnchorMap) {
	for target, terms := range other {
		counts := m[target]
		if counts == nil {
			m[target] = terms
			continue
		}
		for term, n := range terms {
			counts[term] += n
		}
	}
}

// Resolve attributes anchor terms to the doc ids of their targets. Targets
// that were never crawled are dropped. The result is sorted by term with
// postings sorted by doc id, ready to write as a shard.
func (m AnchorMap) Resolve(reverse map[string]int32) (entries []index.TermEntry, resolved, dropped int) {
	mem := index.NewMemoryIndex()
	for target, terms := range m {
		docID, ok := reverse[target]
		if !ok {
			dropped++
			continue
		}
		resolved++
		for term, n := range terms {
			mem.AddPosting(term, index.Posting{DocID: docID, Score: n})
		}
	}
	return mem.Snapshot(), resolved, dropped
}

// AnchorShardName is the file name of the synthetic anchor shard.
const AnchorShardName = "anchors.bin"

// WriteAnchorShard resolves m and writes the result as one more partial
// shard in dir. It returns an empty path when nothing resolved.
func WriteAnchorShard(dir string, m AnchorMap, reverse map[string]int32) (path string, resolved, dropped int, err error) {
	entries, resolved, dropped := m.Resolve(reverse)
	if len(entries) == 0 {
		return "", resolved, dropped, nil
	}
	path = filepath.Join(dir, AnchorShardName)
	if _, err := segment.WriteEntries(path, entries); err != nil {
		return "", resolved, dropped, fmt.Errorf("writing anchor shard: %w", err)
	}
	return path, resolved, dropped, nil
}
