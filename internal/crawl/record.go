// Package crawl reads crawl records produced by the external crawler. A
// record is a page URL plus its raw HTML. Records can come from a directory
// of JSON files, a Kafka topic or a PostgreSQL table; all sources emit them
// in a deterministic order so doc ids are reproducible.
package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Record is one crawled page. Origin identifies where it came from (file
// path, topic offset or row id) for diagnostics.
type Record struct {
	URL     string
	Content []byte
	Origin  string
}

// rawRecord is the JSON wire shape written by the crawler.
type rawRecord struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// EmitFunc receives records in source order. Returning an error stops the
// source.
type EmitFunc func(Record) error

// Source streams crawl records until exhausted or ctx is cancelled.
type Source interface {
	Records(ctx context.Context, emit EmitFunc) error
	Name() string
}

// DecodeRecord parses the crawler's JSON shape. Malformed input yields a
// record with no URL, which validation rejects as a routine skip.
func DecodeRecord(data []byte, origin string) Record {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{Origin: origin}
	}
	return Record{URL: raw.URL, Content: []byte(raw.Content), Origin: origin}
}

// EncodeRecord renders a record in the crawler's JSON shape.
func EncodeRecord(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rawRecord{URL: rec.URL, Content: string(rec.Content)}); err != nil {
		return nil, fmt.Errorf("encoding crawl record: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// SliceSource serves records from memory. It backs tests and small tools.
type SliceSource []Record

func (s SliceSource) Records(ctx context.Context, emit EmitFunc) error {
	for _, rec := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s SliceSource) Name() string {
	return "memory"
}
