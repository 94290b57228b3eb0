package segment

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/errors"
)

// BlockWriter streams term blocks and enforces strictly ascending term order.
type BlockWriter struct {
	w       *bufio.Writer
	offset  int64
	last    string
	started bool
	blocks  int
}

// NewBlockWriter wraps w. Offsets reported by Append start at zero.
func NewBlockWriter(w io.Writer) *BlockWriter {
	return &BlockWriter{w: bufio.NewWriterSize(w, 256*1024)}
}

// Append writes one block and returns the byte offset at which it began.
func (bw *BlockWriter) Append(entry index.TermEntry) (int64, error) {
	if bw.started && entry.Term <= bw.last {
		return 0, fmt.Errorf("term %q after %q: %w", entry.Term, bw.last, apperrors.ErrTermOrder)
	}
	start := bw.offset
	n, err := EncodeBlock(bw.w, entry)
	bw.offset += n
	if err != nil {
		return start, err
	}
	bw.last = entry.Term
	bw.started = true
	bw.blocks++
	return start, nil
}

// Offset is the number of bytes appended so far.
func (bw *BlockWriter) Offset() int64 {
	return bw.offset
}

// Blocks is the number of blocks appended so far.
func (bw *BlockWriter) Blocks() int {
	return bw.blocks
}

func (bw *BlockWriter) Flush() error {
	return bw.w.Flush()
}

// WriteShard sorts the map's terms and writes them as a new shard file.
func WriteShard(path string, postings map[string]index.PostingList) (int64, error) {
	terms := make([]string, 0, len(postings))
	for term := range postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	entries := make([]index.TermEntry, 0, len(terms))
	for _, term := range terms {
		entries = append(entries, index.TermEntry{Term: term, Postings: postings[term]})
	}
	return WriteEntries(path, entries)
}

// WriteEntries atomically creates a shard file from already-sorted entries.
// It writes to a .tmp file first and renames on success.
func WriteEntries(path string, entries []index.TermEntry) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("creating shard directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp shard file: %w", err)
	}
	defer f.Close()

	bw := NewBlockWriter(f)
	for _, entry := range entries {
		if _, err := bw.Append(entry); err != nil {
			os.Remove(tmpPath)
			return 0, fmt.Errorf("writing shard %s: %w", path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("flushing shard %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("syncing shard file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("renaming shard file: %w", err)
	}
	return bw.Offset(), nil
}
