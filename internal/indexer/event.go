package indexer

import "time"

// CompletionEvent is published on the index-complete topic after a build
// has been swapped into place. Searchers reload from Dir.
type CompletionEvent struct {
	BuildID   string    `json:"build_id"`
	Dir       string    `json:"dir"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	BuiltAt   time.Time `json:"built_at"`
}
