package executor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/docmap"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/shard"
)

// Index is one loaded, immutable index directory: the doc map, every
// bucket dictionary and one file handle per bucket. Lookups use positioned
// reads, so any number of queries can share it.
type Index struct {
	dir        string
	generation string
	docs       *docmap.Map
	dicts      map[string]shard.Dictionary
	files      map[string]*os.File

	// Queries hold the read lock; Close takes the write lock so files are
	// not closed under an in-flight lookup.
	mu     sync.RWMutex
	closed bool
}

// Open loads dir. Every bucket must be present.
func Open(dir string) (*Index, error) {
	docs, err := docmap.Load(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(filepath.Join(dir, docmap.FileName))
	if err != nil {
		return nil, fmt.Errorf("reading doc map: %w", err)
	}
	ix := &Index{
		dir:        dir,
		generation: strconv.FormatInt(info.ModTime().UnixNano(), 36) + "-" + strconv.Itoa(docs.Len()),
		docs:       docs,
		dicts:      make(map[string]shard.Dictionary),
		files:      make(map[string]*os.File),
	}
	for _, bucket := range shard.Buckets() {
		dict, err := shard.LoadDictionary(shard.DictionaryPath(dir, bucket))
		if err != nil {
			ix.closeFiles()
			return nil, err
		}
		f, err := os.Open(shard.PostingsPath(dir, bucket))
		if err != nil {
			ix.closeFiles()
			return nil, fmt.Errorf("opening bucket %s: %w", bucket, err)
		}
		ix.dicts[bucket] = dict
		ix.files[bucket] = f
	}
	return ix, nil
}

func (ix *Index) Dir() string { return ix.dir }

// Generation identifies this build of the index. Every replica that opens
// the same published build sees the same value.
func (ix *Index) Generation() string { return ix.generation }

// Docs is the number of documents in the index.
func (ix *Index) Docs() int { return ix.docs.Len() }

// Terms is the vocabulary size across all buckets.
func (ix *Index) Terms() int {
	n := 0
	for _, d := range ix.dicts {
		n += len(d)
	}
	return n
}

// URL resolves a doc id.
func (ix *Index) URL(id int32) (string, bool) {
	return ix.docs.URL(id)
}

// Lookup returns term's postings. A term missing from the dictionary is not
// an error; it reports found=false.
func (ix *Index) Lookup(term string) (postings index.PostingList, found bool, err error) {
	bucket := shard.BucketFor(term)
	offset, ok := ix.dicts[bucket][term]
	if !ok {
		return nil, false, nil
	}
	entry, err := segment.ReadBlockAt(ix.files[bucket], offset)
	if err != nil {
		return nil, true, fmt.Errorf("reading %q from bucket %s: %w", term, bucket, err)
	}
	if entry.Term != term {
		return nil, true, fmt.Errorf("dictionary points %q at block %q in bucket %s", term, entry.Term, bucket)
	}
	return entry.Postings, true, nil
}

// acquire pins the index for one query; it fails once Close has started.
func (ix *Index) acquire() bool {
	ix.mu.RLock()
	if ix.closed {
		ix.mu.RUnlock()
		return false
	}
	return true
}

func (ix *Index) release() {
	ix.mu.RUnlock()
}

// Close waits for in-flight queries and closes the bucket files.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.closeFiles()
}

func (ix *Index) closeFiles() error {
	var errs []error
	for _, f := range ix.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	ix.files = nil
	return errors.Join(errs...)
}
