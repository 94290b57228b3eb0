// Package segment implements the binary term-block format shared by partial
// shards and final bucket files. A file is a sequence of blocks in strictly
// ascending term order:
//
//	[u16 term length L][L bytes UTF-8 term][u32 posting count P]
//	[P × (i32 doc id, f64 IEEE-754 score)]
//
// All integers and floats are big-endian. No block index is needed to read a
// file start to end.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/errors"
)

const (
	// MaxTermLength is the longest term, in bytes, a block can carry.
	MaxTermLength = math.MaxUint16
	postingSize   = 12
	headerSize    = 2
	countSize     = 4
	// readChunk bounds the up-front allocation for a block's postings so a
	// corrupt count cannot force a huge allocation before the data is seen.
	readChunk = 1 << 16
)

// BlockError reports a codec failure at a byte offset within a file.
type BlockError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("shard %s at offset %d: %v", e.Path, e.Offset, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// BlockSize returns the encoded size of a block.
func BlockSize(entry index.TermEntry) int64 {
	return int64(headerSize + len(entry.Term) + countSize + postingSize*len(entry.Postings))
}

// EncodeBlock writes one term block and returns the number of bytes written.
func EncodeBlock(w io.Writer, entry index.TermEntry) (int64, error) {
	if len(entry.Term) > MaxTermLength {
		return 0, fmt.Errorf("term of %d bytes exceeds block limit: %w", len(entry.Term), apperrors.ErrInvalidInput)
	}
	if uint64(len(entry.Postings)) > math.MaxUint32 {
		return 0, fmt.Errorf("term %q has too many postings: %w", entry.Term, apperrors.ErrInvalidInput)
	}
	var written int64
	var head [headerSize]byte
	binary.BigEndian.PutUint16(head[:], uint16(len(entry.Term)))
	n, err := w.Write(head[:])
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("writing term length: %w", err)
	}
	n, err = io.WriteString(w, entry.Term)
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("writing term %q: %w", entry.Term, err)
	}
	var count [countSize]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(entry.Postings)))
	n, err = w.Write(count[:])
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("writing posting count for %q: %w", entry.Term, err)
	}
	var buf [postingSize]byte
	for _, p := range entry.Postings {
		binary.BigEndian.PutUint32(buf[0:4], uint32(p.DocID))
		binary.BigEndian.PutUint64(buf[4:12], math.Float64bits(p.Score))
		n, err = w.Write(buf[:])
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("writing postings for %q: %w", entry.Term, err)
		}
	}
	return written, nil
}

// DecodeBlock reads exactly one block. It returns io.EOF only when r is
// exhausted at a block boundary; a partial block yields ErrCorruptBlock.
func DecodeBlock(r io.Reader) (index.TermEntry, int64, error) {
	term, count, read, err := decodeHeader(r)
	if err != nil {
		return index.TermEntry{}, read, err
	}
	postings, n, err := decodePostings(r, count)
	read += n
	if err != nil {
		return index.TermEntry{}, read, err
	}
	return index.TermEntry{Term: term, Postings: postings}, read, nil
}

func decodeHeader(r io.Reader) (string, uint32, int64, error) {
	var read int64
	var head [headerSize]byte
	n, err := io.ReadFull(r, head[:])
	read += int64(n)
	if err != nil {
		if err == io.EOF {
			return "", 0, read, io.EOF
		}
		return "", 0, read, corrupt("term length", err)
	}
	termLen := int(binary.BigEndian.Uint16(head[:]))
	termBytes := make([]byte, termLen)
	n, err = io.ReadFull(r, termBytes)
	read += int64(n)
	if err != nil {
		return "", 0, read, corrupt("term bytes", err)
	}
	if !utf8.Valid(termBytes) {
		return "", 0, read, fmt.Errorf("term is not valid UTF-8: %w", apperrors.ErrCorruptBlock)
	}
	var count [countSize]byte
	n, err = io.ReadFull(r, count[:])
	read += int64(n)
	if err != nil {
		return "", 0, read, corrupt("posting count", err)
	}
	return string(termBytes), binary.BigEndian.Uint32(count[:]), read, nil
}

func decodePostings(r io.Reader, count uint32) (index.PostingList, int64, error) {
	var read int64
	postings := make(index.PostingList, 0, min(int(count), readChunk))
	var buf [postingSize]byte
	for i := uint32(0); i < count; i++ {
		n, err := io.ReadFull(r, buf[:])
		read += int64(n)
		if err != nil {
			return nil, read, corrupt(fmt.Sprintf("posting %d of %d", i, count), err)
		}
		postings = append(postings, index.Posting{
			DocID: int32(binary.BigEndian.Uint32(buf[0:4])),
			Score: math.Float64frombits(binary.BigEndian.Uint64(buf[4:12])),
		})
	}
	return postings, read, nil
}

func corrupt(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("truncated %s: %w", what, apperrors.ErrCorruptBlock)
	}
	return fmt.Errorf("reading %s: %w", what, err)
}
