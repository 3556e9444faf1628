package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/redis"
)

const doc = "The cat sat on the mat"

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type recorder struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recorder) Track(e analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func newServer(t *testing.T, withCache bool) (*http.ServeMux, *recorder) {
	t.Helper()
	idx, err := index.Build(doc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := &recorder{}
	opts := Options{
		Tracker:             rec,
		DefaultContextWords: 1,
		ContextUnit:         idx.ContextUnit(),
		Source:              "file:doc.txt",
	}
	if withCache {
		opts.Cache = cache.New(&memStore{data: map[string]string{}}, time.Minute, "doc", nil)
	}
	mux := http.NewServeMux()
	New(executor.New(idx, 10, nil), opts).RegisterRoutes(mux)
	return mux, rec
}

func do(t *testing.T, mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSearch(t *testing.T) {
	mux, events := newServer(t, false)

	rec := do(t, mux, http.MethodGet, "/api/v1/search?q=the")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	res := decode[executor.SearchResult](t, rec)
	if !slices.Equal(res.Windows, []string{"The cat", "on the mat"}) || res.ContextWords != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(events.events) != 1 {
		t.Fatalf("tracked %d events", len(events.events))
	}
	ev := events.events[0].(analytics.SearchEvent)
	if ev.Type != analytics.EventSearch || ev.TotalHits != 2 || ev.Query != "the" {
		t.Errorf("event = %+v", ev)
	}
}

func TestSearchParams(t *testing.T) {
	mux, events := newServer(t, false)

	rec := do(t, mux, http.MethodGet, "/api/v1/search?q=mat&context=0&matches=true")
	res := decode[executor.SearchResult](t, rec)
	if len(res.Matches) != 1 || res.Matches[0].Position != 10 || res.Windows[0] != "mat" {
		t.Errorf("result = %+v", res)
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/search?q=dog")
	res = decode[executor.SearchResult](t, rec)
	if rec.Code != http.StatusOK || res.TotalHits != 0 || res.Windows == nil {
		t.Errorf("zero result = %d %+v", rec.Code, res)
	}
	if ev := events.events[1].(analytics.SearchEvent); ev.Type != analytics.EventZeroResult {
		t.Errorf("event type = %s", ev.Type)
	}
}

func TestSearchBadRequests(t *testing.T) {
	mux, events := newServer(t, false)
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=%20",
		"/api/v1/search?q=the&context=-1",
		"/api/v1/search?q=the&context=abc",
		"/api/v1/search?q=the&matches=maybe",
		"/api/v1/search?q=the+cat",
	} {
		rec := do(t, mux, http.MethodGet, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", target, rec.Code)
			continue
		}
		if body := decode[map[string]string](t, rec); body["error"] == "" {
			t.Errorf("%s: missing error message", target)
		}
	}
	if len(events.events) != 0 {
		t.Errorf("rejected requests tracked %d events", len(events.events))
	}
}

func TestSearchMethodNotAllowed(t *testing.T) {
	mux, _ := newServer(t, false)
	if rec := do(t, mux, http.MethodPost, "/api/v1/search?q=the"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/cache/invalidate"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSearchCached(t *testing.T) {
	mux, events := newServer(t, true)

	do(t, mux, http.MethodGet, "/api/v1/search?q=the")
	rec := do(t, mux, http.MethodGet, "/api/v1/search?q=THE")
	res := decode[executor.SearchResult](t, rec)
	if res.Query != "THE" || res.TotalHits != 2 {
		t.Errorf("cached result = %+v", res)
	}
	if ev := events.events[1].(analytics.SearchEvent); !ev.CacheHit {
		t.Error("second search should be a cache hit")
	}

	stats := decode[map[string]any](t, do(t, mux, http.MethodGet, "/api/v1/cache/stats"))
	if stats["hits"] != float64(1) || stats["misses"] != float64(1) || stats["hit_rate"] != "50.0%" || stats["breaker"] != "none" {
		t.Errorf("cache stats = %v", stats)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/cache/invalidate")
	if rec.Code != http.StatusOK {
		t.Errorf("invalidate status = %d", rec.Code)
	}
	do(t, mux, http.MethodGet, "/api/v1/search?q=the")
	if ev := events.events[2].(analytics.SearchEvent); ev.CacheHit {
		t.Error("search after invalidate should miss")
	}
}

func TestSearchCacheKeysOnCappedContext(t *testing.T) {
	mux, events := newServer(t, true)

	first := decode[executor.SearchResult](t, do(t, mux, http.MethodGet, "/api/v1/search?q=cat&context=50"))
	second := decode[executor.SearchResult](t, do(t, mux, http.MethodGet, "/api/v1/search?q=cat&context=500"))
	if first.ContextWords != 10 || second.ContextWords != 10 || second.Windows[0] != doc {
		t.Errorf("results = %+v, %+v", first, second)
	}
	if ev := events.events[1].(analytics.SearchEvent); !ev.CacheHit {
		t.Error("widths above the cap should share one cache entry")
	}
}

func TestCacheDisabled(t *testing.T) {
	mux, _ := newServer(t, false)
	stats := decode[map[string]string](t, do(t, mux, http.MethodGet, "/api/v1/cache/stats"))
	if stats["status"] != "disabled" {
		t.Errorf("stats = %v", stats)
	}
	if rec := do(t, mux, http.MethodPost, "/api/v1/cache/invalidate"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d", rec.Code)
	}
}

func TestIndexStats(t *testing.T) {
	mux, _ := newServer(t, false)
	stats := decode[map[string]any](t, do(t, mux, http.MethodGet, "/api/v1/index/stats"))
	if stats["tokens"] != float64(11) || stats["word_tokens"] != float64(6) ||
		stats["distinct_words"] != float64(5) || stats["context_unit"] != "slots" {
		t.Errorf("stats = %v", stats)
	}
}

func TestNotReady(t *testing.T) {
	mux := http.NewServeMux()
	New(executor.New(nil, 0, nil), Options{}).RegisterRoutes(mux)
	rec := do(t, mux, http.MethodGet, "/api/v1/search?q=the")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "not ready") {
		t.Errorf("body = %s", body)
	}
}

func TestHealth(t *testing.T) {
	mux, _ := newServer(t, false)
	if rec := do(t, mux, http.MethodGet, "/health"); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
