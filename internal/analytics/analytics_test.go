package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/kafka"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestCollectorPublishesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16)
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Query: "the", TotalHits: 2})
	c.Track(IndexEvent{Type: EventIndexBuild, Tokens: 11})
	c.Close()

	if pub.count() != 2 {
		t.Fatalf("published %d events", pub.count())
	}
	if pub.events[0].Key != "search" || pub.events[1].Key != "index_build" {
		t.Errorf("keys = %q, %q", pub.events[0].Key, pub.events[1].Key)
	}
	if ev, ok := pub.events[0].Value.(SearchEvent); !ok || ev.Query != "the" {
		t.Errorf("value = %#v", pub.events[0].Value)
	}

	// Tracking after Close is a no-op rather than a panic.
	c.Track(SearchEvent{Type: EventSearch})
	c.Close()
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 1)
	// Not started, so the buffer fills after one event.
	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	c.Start(context.Background())
	c.Close()
	if pub.count() != 1 {
		t.Errorf("published %d events, want 1", pub.count())
	}
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		c.Track(SearchEvent{Query: "q"})
	}
	c.Start(ctx)
	c.Close()
	if pub.count() != 3 {
		t.Errorf("published %d events, want 3", pub.count())
	}
}

func TestCollectorPublishErrorIsLogged(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 4)
	c.Start(context.Background())
	c.Track(SearchEvent{Query: "q"})
	c.Close()
	if pub.count() != 0 {
		t.Error("nothing should be recorded on failure")
	}
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	start := agg.startTime
	agg.now = func() time.Time { return start.Add(2 * time.Minute) }

	tee := Tee{agg, nil}
	tee.Track(SearchEvent{Query: "the", TotalHits: 2, LatencyMs: 10})
	tee.Track(SearchEvent{Query: "the", TotalHits: 2, LatencyMs: 30, CacheHit: true})
	tee.Track(SearchEvent{Query: "dog", TotalHits: 0, LatencyMs: 20})
	tee.Track(IndexEvent{Source: "file:doc.txt", Tokens: 11})

	s := agg.Stats()
	if s.TotalSearches != 3 || s.CacheHits != 1 || s.CacheMisses != 2 || s.ZeroResultCount != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.AvgLatencyMs != 20 || s.P50LatencyMs != 20 || s.P99LatencyMs != 30 {
		t.Errorf("latency = avg %v p50 %d p99 %d", s.AvgLatencyMs, s.P50LatencyMs, s.P99LatencyMs)
	}
	if len(s.TopQueries) != 2 || s.TopQueries[0] != (QueryCount{"the", 2}) {
		t.Errorf("TopQueries = %v", s.TopQueries)
	}
	if len(s.ZeroResultQueries) != 1 || s.ZeroResultQueries[0].Query != "dog" {
		t.Errorf("ZeroResultQueries = %v", s.ZeroResultQueries)
	}
	if s.QueriesPerMinute != 1.5 {
		t.Errorf("QueriesPerMinute = %v", s.QueriesPerMinute)
	}
	if s.IndexBuilds != 1 || s.LastIndex == nil || s.LastIndex.Tokens != 11 {
		t.Errorf("index = %d %+v", s.IndexBuilds, s.LastIndex)
	}
}

func TestAggregatorLatencyWindow(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+5; i++ {
		agg.Track(SearchEvent{Query: "q", TotalHits: 1, LatencyMs: 1})
	}
	if len(agg.latencies) != maxLatencySamples {
		t.Errorf("kept %d samples", len(agg.latencies))
	}
	if agg.Stats().TotalSearches != maxLatencySamples+5 {
		t.Error("totals should not be windowed")
	}
}

func TestTopNTieBreak(t *testing.T) {
	got := topN(map[string]int64{"b": 1, "a": 1, "c": 3}, 2)
	if len(got) != 2 || got[0].Query != "c" || got[1].Query != "a" {
		t.Errorf("topN = %v", got)
	}
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(SearchEvent{Query: "cat", TotalHits: 1})
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var s AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.TotalSearches != 1 || s.TopQueries[0].Query != "cat" {
		t.Errorf("stats = %+v", s)
	}

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analytics/stats", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rec.Code)
	}
}

func TestHandlerStatsTop(t *testing.T) {
	agg := NewAggregator()
	for _, q := range []string{"cat", "cat", "mat", "dog"} {
		agg.Track(SearchEvent{Query: q, TotalHits: 1})
	}
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/stats?top=1", nil))
	var s AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if len(s.TopQueries) != 1 || s.TopQueries[0] != (QueryCount{Query: "cat", Count: 2}) {
		t.Errorf("top queries = %v", s.TopQueries)
	}

	for _, bad := range []string{"0", "101", "x"} {
		rec = httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/stats?top="+bad, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("top=%s: status = %d", bad, rec.Code)
		}
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, in := range []Event{
		SearchEvent{Type: EventZeroResult, Query: "dog", ContextWords: 2, Timestamp: ts},
		IndexEvent{Type: EventIndexBuild, Source: "file:doc.txt", Tokens: 11, Timestamp: ts},
	} {
		raw, err := json.Marshal(in)
		if err != nil {
			t.Fatal(err)
		}
		out, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode(%s): %v", raw, err)
		}
		if out != in {
			t.Errorf("Decode = %+v, want %+v", out, in)
		}
	}

	if _, err := Decode([]byte(`{"type":"mystery"}`)); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for bad json")
	}
}

func TestHandleMessageFeedsAggregator(t *testing.T) {
	agg := NewAggregator()
	handle := HandleMessage(agg)

	raw, _ := json.Marshal(SearchEvent{Type: EventSearch, Query: "cat", TotalHits: 1, CacheHit: true})
	if err := handle(context.Background(), []byte("search"), raw); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := handle(context.Background(), nil, []byte(`{}`)); err == nil {
		t.Error("expected error for event without type")
	}

	stats := agg.Stats()
	if stats.TotalSearches != 1 || stats.CacheHits != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
