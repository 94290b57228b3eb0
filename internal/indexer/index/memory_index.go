package index

import (
	"sort"
	"sync"
)

// MemoryIndex accumulates the postings of one ingestion batch, keyed by term.
type MemoryIndex struct {
	mu       sync.RWMutex
	index    map[string]PostingList
	docCount int
	postings int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]PostingList),
	}
}

// AddDocument appends one posting per term of the document.
func (m *MemoryIndex) AddDocument(docID int32, terms map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for term, count := range terms {
		m.index[term] = append(m.index[term], Posting{DocID: docID, Score: count})
	}
	m.postings += int64(len(terms))
	m.docCount++
}

// AddPosting appends a single posting without counting a new document.
func (m *MemoryIndex) AddPosting(term string, p Posting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index[term] = append(m.index[term], p)
	m.postings++
}

// Snapshot returns the batch as term-sorted entries, each doc-id sorted.
func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, postings := range m.index {
		sorted := make(PostingList, len(postings))
		copy(sorted, postings)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].DocID < sorted[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: sorted,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

func (m *MemoryIndex) Terms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index)
}

func (m *MemoryIndex) Postings() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.postings
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docCount
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]PostingList)
	m.docCount = 0
	m.postings = 0
}
