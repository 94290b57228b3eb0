package merge

import (
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/segment"
)

// cursor is one open shard and the block it is positioned on.
type cursor struct {
	reader  *segment.Reader
	base    int32
	current index.TermEntry
}

// cursorHeap orders cursors by their current term. Ties break on the input
// position so merges are reproducible.
type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	if h[i].current.Term != h[j].current.Term {
		return h[i].current.Term < h[j].current.Term
	}
	return h[i].base < h[j].base
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) {
	*h = append(*h, x.(*cursor))
}

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
