// Package analytics tracks search and indexing activity. Services publish
// events to Kafka through a Collector; an Aggregator consumes them and keeps
// rolling statistics for the analytics endpoint.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventCacheHit   EventType = "cache_hit"
	EventZeroResult EventType = "zero_result"
	EventIndexDoc   EventType = "index_document"
	EventRefresh    EventType = "refresh"
)

type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Terms      []string  `json:"terms"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	Pages      int       `json:"pages"`
	Candidates int       `json:"candidates"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

type IndexEvent struct {
	Type          EventType `json:"type"`
	DocumentID    int64     `json:"document_id"`
	TokenCount    int       `json:"token_count"`
	DistinctTerms int       `json:"distinct_terms"`
	MarkedStale   int64     `json:"marked_stale"`
	Refreshed     int       `json:"refreshed"`
	LatencyMs     int64     `json:"latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// envelope peeks at the type of an encoded event.
type envelope struct {
	Type EventType `json:"type"`
}
