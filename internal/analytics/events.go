// Package analytics records search and index events, publishes them to Kafka
// and keeps an in-process aggregate for the stats endpoint.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventIndexBuild EventType = "index_build"
)

// Event is anything the collector can publish. Key selects the Kafka partition.
type Event interface {
	Key() string
}

type SearchEvent struct {
	Type         EventType `json:"type"`
	Query        string    `json:"query"`
	ContextWords int       `json:"context_words"`
	ContextUnit  string    `json:"context_unit"`
	TotalHits    int       `json:"total_hits"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

func (e SearchEvent) Key() string { return string(e.Type) }

type IndexEvent struct {
	Type          EventType `json:"type"`
	Source        string    `json:"source"`
	SizeBytes     int       `json:"size_bytes"`
	Tokens        int       `json:"tokens"`
	WordTokens    int       `json:"word_tokens"`
	DistinctWords int       `json:"distinct_words"`
	LatencyMs     int64     `json:"latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e IndexEvent) Key() string { return string(e.Type) }
