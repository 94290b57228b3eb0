package segment

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/errors"
)

// Reader is a forward-only, pull-based reader over one shard file. It
// verifies that terms arrive in strictly ascending order.
type Reader struct {
	file    *os.File
	br      *bufio.Reader
	path    string
	offset  int64
	last    string
	started bool
	blocks  int
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shard file: %w", err)
	}
	return &Reader{
		file: f,
		br:   bufio.NewReaderSize(f, 256*1024),
		path: path,
	}, nil
}

// Next reads exactly one block, returning io.EOF once the file is exhausted.
// Failures are *BlockError values unwrapping to ErrCorruptBlock or
// ErrTermOrder.
func (r *Reader) Next() (index.TermEntry, error) {
	return r.NextMatching(nil)
}

// NextMatching returns the next block whose term satisfies keep, discarding
// the postings of blocks it skips. A nil keep accepts every block. Order is
// verified for skipped blocks too.
func (r *Reader) NextMatching(keep func(term string) bool) (index.TermEntry, error) {
	for {
		start := r.offset
		term, count, n, err := decodeHeader(r.br)
		r.offset += n
		if err != nil {
			if err == io.EOF {
				return index.TermEntry{}, io.EOF
			}
			return index.TermEntry{}, r.fail(start, err)
		}
		if r.started && term <= r.last {
			return index.TermEntry{}, r.fail(start,
				fmt.Errorf("term %q follows %q: %w", term, r.last, apperrors.ErrTermOrder))
		}
		r.last = term
		r.started = true
		r.blocks++

		if keep != nil && !keep(term) {
			if err := r.skip(count); err != nil {
				return index.TermEntry{}, r.fail(start, err)
			}
			continue
		}
		postings, n, err := decodePostings(r.br, count)
		r.offset += n
		if err != nil {
			return index.TermEntry{}, r.fail(start, err)
		}
		return index.TermEntry{Term: term, Postings: postings}, nil
	}
}

func (r *Reader) skip(count uint32) error {
	remaining := int64(count) * postingSize
	for remaining > 0 {
		step := int(min(remaining, math.MaxInt32))
		n, err := r.br.Discard(step)
		r.offset += int64(n)
		remaining -= int64(n)
		if err != nil {
			return corrupt("skipped postings", err)
		}
	}
	return nil
}

func (r *Reader) fail(offset int64, err error) error {
	return &BlockError{Path: r.path, Offset: offset, Err: err}
}

// Path returns the shard file path.
func (r *Reader) Path() string {
	return r.path
}

// Offset returns the byte offset of the next unread block.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Blocks returns how many blocks have been read or skipped.
func (r *Reader) Blocks() int {
	return r.blocks
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadBlockAt decodes the single block starting at offset using positioned
// reads, so concurrent callers sharing ra never interfere.
func ReadBlockAt(ra io.ReaderAt, offset int64) (index.TermEntry, error) {
	section := io.NewSectionReader(ra, offset, math.MaxInt64-offset)
	entry, _, err := DecodeBlock(bufio.NewReader(section))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return index.TermEntry{}, fmt.Errorf("no block at offset %d: %w", offset, apperrors.ErrCorruptBlock)
		}
		return index.TermEntry{}, err
	}
	return entry, nil
}
