// Package shard routes terms to the 27 first-letter buckets of the final
// index and writes each bucket's postings file and dictionary.
package shard

import (
	"fmt"
	"path/filepath"
)

// OthersBucket holds every term whose first character is not a-z.
const OthersBucket = "others"

var buckets = func() []string {
	names := make([]string, 0, 27)
	for c := 'a'; c <= 'z'; c++ {
		names = append(names, string(c))
	}
	return append(names, OthersBucket)
}()

// Buckets lists every bucket name: a through z, then others.
func Buckets() []string {
	out := make([]string, len(buckets))
	copy(out, buckets)
	return out
}

// BucketFor picks a term's bucket from its first byte.
func BucketFor(term string) string {
	if term != "" {
		if c := term[0]; c >= 'a' && c <= 'z' {
			return buckets[c-'a']
		}
	}
	return OthersBucket
}

// PostingsPath is the bucket's postings file inside dir.
func PostingsPath(dir, bucket string) string {
	return filepath.Join(dir, fmt.Sprintf("postings_%s.bin", bucket))
}

// DictionaryPath is the bucket's dictionary file inside dir.
func DictionaryPath(dir, bucket string) string {
	return filepath.Join(dir, fmt.Sprintf("dict_%s.bin", bucket))
}
