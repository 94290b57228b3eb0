package shard

import (
	"errors"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/segment"
)

// BucketWriter streams the blocks of one bucket to a temp file and records
// each term's offset. Nothing is visible under the final names until
// Finalize.
type BucketWriter struct {
	name     string
	path     string
	dict     Dictionary
	terms    []string
	file     *os.File
	blocks   *segment.BlockWriter
	postings int64
}

func newBucketWriter(dir, name string) (*BucketWriter, error) {
	path := PostingsPath(dir, name)
	f, err := os.Create(path + ".tmp")
	if err != nil {
		return nil, fmt.Errorf("creating bucket %s: %w", name, err)
	}
	return &BucketWriter{
		name:   name,
		path:   path,
		dict:   make(Dictionary),
		file:   f,
		blocks: segment.NewBlockWriter(f),
	}, nil
}

// Append writes entry and records its offset. Terms must arrive in strictly
// ascending order.
func (b *BucketWriter) Append(entry index.TermEntry) error {
	offset, err := b.blocks.Append(entry)
	if err != nil {
		return fmt.Errorf("bucket %s: %w", b.name, err)
	}
	b.dict[entry.Term] = offset
	b.terms = append(b.terms, entry.Term)
	b.postings += int64(len(entry.Postings))
	return nil
}

// Terms is the number of terms appended so far.
func (b *BucketWriter) Terms() int {
	return len(b.terms)
}

func (b *BucketWriter) finalize(dir string) error {
	if err := b.blocks.Flush(); err != nil {
		return fmt.Errorf("flushing bucket %s: %w", b.name, err)
	}
	if err := b.file.Sync(); err != nil {
		return fmt.Errorf("syncing bucket %s: %w", b.name, err)
	}
	if err := b.file.Close(); err != nil {
		return fmt.Errorf("closing bucket %s: %w", b.name, err)
	}
	b.file = nil
	if err := os.Rename(b.path+".tmp", b.path); err != nil {
		return fmt.Errorf("renaming bucket %s: %w", b.name, err)
	}
	return WriteDictionary(DictionaryPath(dir, b.name), b.dict, b.terms)
}

func (b *BucketWriter) abort() {
	if b.file != nil {
		b.file.Close()
		b.file = nil
	}
	os.Remove(b.path + ".tmp")
}

// BucketStats summarises one finished bucket.
type BucketStats struct {
	Bucket   string
	Terms    int
	Postings int64
	Bytes    int64
}

// Set owns one writer per bucket. Writers of different buckets may be used
// from different goroutines; a single writer may not.
type Set struct {
	dir     string
	writers map[string]*BucketWriter
}

// NewSet creates temp files for all 27 buckets in dir.
func NewSet(dir string) (*Set, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	s := &Set{dir: dir, writers: make(map[string]*BucketWriter, len(buckets))}
	for _, name := range buckets {
		w, err := newBucketWriter(dir, name)
		if err != nil {
			s.Abort()
			return nil, err
		}
		s.writers[name] = w
	}
	return s, nil
}

// Bucket returns the writer for the named bucket.
func (s *Set) Bucket(name string) *BucketWriter {
	return s.writers[name]
}

// Append routes entry to its bucket.
func (s *Set) Append(entry index.TermEntry) error {
	return s.writers[BucketFor(entry.Term)].Append(entry)
}

// Finalize publishes every bucket file and its dictionary. Empty buckets
// still get both files so readers never see a missing bucket.
func (s *Set) Finalize() ([]BucketStats, error) {
	stats := make([]BucketStats, 0, len(buckets))
	var errs []error
	for _, name := range buckets {
		w := s.writers[name]
		if err := w.finalize(s.dir); err != nil {
			errs = append(errs, err)
			w.abort()
			continue
		}
		stats = append(stats, BucketStats{
			Bucket:   name,
			Terms:    len(w.terms),
			Postings: w.postings,
			Bytes:    w.blocks.Offset(),
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return stats, nil
}

// Abort discards all temp files.
func (s *Set) Abort() {
	for _, w := range s.writers {
		w.abort()
	}
}
