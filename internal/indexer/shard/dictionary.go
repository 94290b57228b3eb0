package shard

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/errors"
)

// Dictionary maps each term of one bucket to the byte offset of its block
// in that bucket's postings file.
type Dictionary map[string]int64

// Encode writes [u16 len][term][u64 offset] records, big-endian, in the
// order given by terms.
func (d Dictionary) Encode(w io.Writer, terms []string) error {
	var hdr [2]byte
	var off [8]byte
	for _, term := range terms {
		if len(term) > math.MaxUint16 {
			return fmt.Errorf("dictionary term of %d bytes too long", len(term))
		}
		binary.BigEndian.PutUint16(hdr[:], uint16(len(term)))
		binary.BigEndian.PutUint64(off[:], uint64(d[term]))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, term); err != nil {
			return err
		}
		if _, err := w.Write(off[:]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDictionary reads records until EOF. A partial record is corrupt.
func DecodeDictionary(r io.Reader) (Dictionary, error) {
	d := make(Dictionary)
	var hdr [2]byte
	var off [8]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF {
				return d, nil
			}
			return nil, fmt.Errorf("reading dictionary term length: %w", apperrors.ErrCorruptBlock)
		}
		term := make([]byte, binary.BigEndian.Uint16(hdr[:]))
		if _, err := io.ReadFull(r, term); err != nil {
			return nil, fmt.Errorf("reading dictionary term: %w", apperrors.ErrCorruptBlock)
		}
		if !utf8.Valid(term) {
			return nil, fmt.Errorf("dictionary term is not utf-8: %w", apperrors.ErrCorruptBlock)
		}
		if _, err := io.ReadFull(r, off[:]); err != nil {
			return nil, fmt.Errorf("reading offset of %q: %w", term, apperrors.ErrCorruptBlock)
		}
		offset := binary.BigEndian.Uint64(off[:])
		if offset > math.MaxInt64 {
			return nil, fmt.Errorf("offset of %q out of range: %w", term, apperrors.ErrCorruptBlock)
		}
		d[string(term)] = int64(offset)
	}
}

// WriteDictionary atomically writes d to path with terms in the given order.
func WriteDictionary(path string, d Dictionary, terms []string) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating dictionary: %w", err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := d.Encode(bw, terms); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing dictionary %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("flushing dictionary %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("syncing dictionary %s: %w", path, err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming dictionary %s: %w", path, err)
	}
	return nil
}

// LoadDictionary reads a dictionary file.
func LoadDictionary(path string) (Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dictionary: %w", err)
	}
	defer f.Close()
	d, err := DecodeDictionary(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return d, nil
}
