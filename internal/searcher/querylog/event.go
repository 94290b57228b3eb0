// Package querylog records served searches: an in-process aggregate of
// popular and zero-result queries, and an optional batched stream of
// events to Kafka for offline analysis.
package querylog

import "time"

// Event describes one served search.
type Event struct {
	Query     string    `json:"query"`
	Mode      string    `json:"mode"`
	Terms     []string  `json:"terms"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	Cache     string    `json:"cache"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
