// Package ranker combines per-term posting lists into a ranked result list.
// Scores are additive: a document's score is the sum of its final tf-idf
// scores over every matched query term.
package ranker

import (
	"container/heap"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
)

type ScoredDoc struct {
	DocID int32   `json:"doc_id"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

// Aggregate sums scores per document across all lists.
func Aggregate(lists []index.PostingList) map[int32]float64 {
	size := 0
	for _, l := range lists {
		size = max(size, len(l))
	}
	scores := make(map[int32]float64, size)
	for _, l := range lists {
		for _, p := range l {
			scores[p.DocID] += p.Score
		}
	}
	return scores
}

// Intersect returns the documents present in every list. No lists means no
// documents.
func Intersect(lists []index.PostingList) *roaring.Bitmap {
	if len(lists) == 0 {
		return roaring.New()
	}
	sets := make([]*roaring.Bitmap, len(lists))
	for i, l := range lists {
		b := roaring.New()
		for _, p := range l {
			b.Add(uint32(p.DocID))
		}
		sets[i] = b
	}
	return roaring.FastAnd(sets...)
}

// Rank returns the top limit documents by score descending, doc id
// ascending. When allow is non-nil only its members are ranked.
func Rank(scores map[int32]float64, allow *roaring.Bitmap, limit int) []ScoredDoc {
	if limit <= 0 {
		return []ScoredDoc{}
	}
	h := make(worstFirst, 0, min(limit, len(scores))+1)
	for docID, score := range scores {
		if allow != nil && !allow.Contains(uint32(docID)) {
			continue
		}
		doc := ScoredDoc{DocID: docID, Score: score}
		if h.Len() < limit {
			heap.Push(&h, doc)
			continue
		}
		if better(doc, h[0]) {
			h[0] = doc
			heap.Fix(&h, 0)
		}
	}
	out := []ScoredDoc(h)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}

// Matches counts documents that would be ranked.
func Matches(scores map[int32]float64, allow *roaring.Bitmap) int {
	if allow == nil {
		return len(scores)
	}
	n := 0
	for docID := range scores {
		if allow.Contains(uint32(docID)) {
			n++
		}
	}
	return n
}

func better(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// worstFirst is a min-heap under better, so the root is the weakest of the
// current top-k.
type worstFirst []ScoredDoc

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return better(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *worstFirst) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
