// Package docmap persists the doc id to URL mapping. Doc ids are dense
// positions: the URL at index i belongs to doc id i.
//
// File layout, big-endian:
//
//	[u32 count] then count × [u32 len][len bytes of URL]
package docmap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/errors"
)

// FileName is the doc map's name inside an index directory.
const FileName = "docmap.bin"

// Map resolves doc ids to URLs.
type Map struct {
	urls []string
}

func New(urls []string) *Map {
	return &Map{urls: urls}
}

// URL returns the URL for id, or false when id is out of range.
func (m *Map) URL(id int32) (string, bool) {
	if id < 0 || int(id) >= len(m.urls) {
		return "", false
	}
	return m.urls[id], true
}

// Len is the number of indexed documents.
func (m *Map) Len() int {
	return len(m.urls)
}

// Reverse maps canonical URLs back to doc ids. When the crawl holds the same
// page twice, the lowest id wins.
func (m *Map) Reverse() map[string]int32 {
	rev := make(map[string]int32, len(m.urls))
	for i, u := range m.urls {
		key := tokenizer.CanonicalURL(u)
		if _, seen := rev[key]; !seen {
			rev[key] = int32(i)
		}
	}
	return rev
}

// Encode writes the map in its binary layout.
func (m *Map) Encode(w io.Writer) error {
	if uint64(len(m.urls)) > math.MaxInt32 {
		return fmt.Errorf("doc map has %d entries, more than int32 ids allow", len(m.urls))
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(len(m.urls)))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	for _, u := range m.urls {
		binary.BigEndian.PutUint32(buf[:], uint32(len(u)))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, u); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a map written by Encode.
func Decode(r io.Reader) (*Map, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("reading doc count: %w", apperrors.ErrCorruptBlock)
	}
	count := binary.BigEndian.Uint32(buf[:])
	if count > math.MaxInt32 {
		return nil, fmt.Errorf("doc count %d out of range: %w", count, apperrors.ErrCorruptBlock)
	}
	urls := make([]string, 0, min(count, 1<<20))
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("reading url length for doc %d: %w", i, apperrors.ErrCorruptBlock)
		}
		n := binary.BigEndian.Uint32(buf[:])
		// The length is untrusted; grow with the bytes actually present.
		var sb strings.Builder
		if _, err := io.CopyN(&sb, r, int64(n)); err != nil {
			return nil, fmt.Errorf("reading url for doc %d: %w", i, apperrors.ErrCorruptBlock)
		}
		urls = append(urls, sb.String())
	}
	return &Map{urls: urls}, nil
}

// Write atomically stores the map as dir/docmap.bin.
func (m *Map) Write(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating doc map: %w", err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := m.Encode(bw); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing doc map: %w", err)
	}
	if err := bw.Flush(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("flushing doc map: %w", err)
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("syncing doc map: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming doc map: %w", err)
	}
	return nil
}

// Load reads dir/docmap.bin.
func Load(dir string) (*Map, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening doc map: %w", err)
	}
	defer f.Close()
	m, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return m, nil
}
