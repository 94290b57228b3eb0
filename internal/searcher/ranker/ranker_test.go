package ranker

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
)

func TestAggregateSums(t *testing.T) {
	lists := []index.PostingList{
		{{DocID: 0, Score: 1}, {DocID: 2, Score: 0.5}},
		{{DocID: 2, Score: 2}},
		nil,
	}
	want := map[int32]float64{0: 1, 2: 2.5}
	if diff := cmp.Diff(want, Aggregate(lists)); diff != "" {
		t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestRankOrderAndTies(t *testing.T) {
	scores := map[int32]float64{5: 1, 3: 2, 1: 1, 9: 0, 0: 0}
	got := Rank(scores, nil, 10)
	want := []ScoredDoc{
		{DocID: 3, Score: 2},
		{DocID: 1, Score: 1},
		{DocID: 5, Score: 1},
		{DocID: 0, Score: 0},
		{DocID: 9, Score: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Rank mismatch (-want +got):\n%s", diff)
	}
}

func TestRankTopK(t *testing.T) {
	scores := make(map[int32]float64)
	for i := int32(0); i < 1000; i++ {
		scores[i] = float64(i % 17)
	}
	got := Rank(scores, nil, 3)
	want := []ScoredDoc{{DocID: 16, Score: 16}, {DocID: 33, Score: 16}, {DocID: 50, Score: 16}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Rank top-3 mismatch (-want +got):\n%s", diff)
	}
	if got := Rank(scores, nil, 0); len(got) != 0 {
		t.Errorf("Rank(limit=0) = %v", got)
	}
}

func TestIntersectFilters(t *testing.T) {
	cat := index.PostingList{{DocID: 0, Score: 2 * math.Ln2}, {DocID: 4, Score: 1}}
	dog := index.PostingList{{DocID: 0, Score: 0}, {DocID: 1, Score: 0}, {DocID: 4, Score: 0}}
	allow := Intersect([]index.PostingList{cat, dog})
	if allow.GetCardinality() != 2 || !allow.Contains(0) || !allow.Contains(4) {
		t.Fatalf("Intersect = %v", allow.ToArray())
	}
	scores := Aggregate([]index.PostingList{cat, dog})
	got := Rank(scores, allow, 10)
	if len(got) != 2 || got[0].DocID != 0 || got[1].DocID != 4 {
		t.Errorf("Rank with filter = %+v", got)
	}
	if n := Matches(scores, allow); n != 2 {
		t.Errorf("Matches = %d, want 2", n)
	}
	if Intersect(nil).GetCardinality() != 0 {
		t.Error("Intersect(nil) should be empty")
	}
}
