// Package integration contains tests that verify the interaction between
// multiple components. The HTTP chain tests run in-process; the PostgreSQL
// and Redis tests skip when those services are unavailable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/resilience"
)

const document = "It was the best of times, it was the worst of times."

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "textsearcher_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "textsearcher"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// skipIfNoRedis skips the test when Redis is unavailable.
func skipIfNoRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	client, err := pkgredis.NewClient(context.Background(), config.RedisConfig{
		Addr:     envOrDefault("TEST_REDIS_ADDR", "localhost:6379"),
		DB:       envOrDefaultInt("TEST_REDIS_DB", 15),
		PoolSize: 4,
	})
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// seedTable creates a throwaway documents table holding one row.
func seedTable(t *testing.T, db *postgres.Client, id, body string) string {
	t.Helper()
	table := fmt.Sprintf("documents_it_%d", time.Now().UnixNano())
	ctx := context.Background()
	if _, err := db.DB.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %q (id TEXT PRIMARY KEY, body TEXT NOT NULL)`, table)); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() {
		db.DB.ExecContext(context.Background(), fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table))
	})
	if _, err := db.DB.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %q (id, body) VALUES ($1, $2)`, table), id, body); err != nil {
		t.Fatalf("inserting document: %v", err)
	}
	return table
}

// newSearchServer wires the handler behind the production middleware chain.
func newSearchServer(t *testing.T, text string, qc *cache.QueryCache, ratePerMinute int) (*httptest.Server, *analytics.Aggregator) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	agg := analytics.NewAggregator()

	engine, err := indexer.NewEngine(loader.ReaderLoader{Name: "it", R: strings.NewReader(text)},
		config.SearchConfig{ContextUnit: "slots", DefaultContextWords: 1, MaxContextWords: 10}, m, agg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	built, err := engine.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mux := http.NewServeMux()
	handler.New(executor.New(built.Index, 10, m), handler.Options{
		Cache:               qc,
		Tracker:             agg,
		DefaultContextWords: 1,
		ContextUnit:         built.Index.ContextUnit(),
		Source:              built.Source,
	}).RegisterRoutes(mux)
	mux.HandleFunc("GET /api/v1/analytics/stats", analytics.NewHandler(agg).Stats)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Recover,
		middleware.Logging,
		middleware.Metrics(m),
		middleware.RateLimit(ratelimit.New(ctx, time.Minute), ratePerMinute, time.Minute),
		middleware.Timeout(5*time.Second),
	)
	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)
	return srv, agg
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestSearchThroughMiddleware verifies a query passes the full chain and
// carries a request ID back to the caller.
func TestSearchThroughMiddleware(t *testing.T) {
	srv, agg := newSearchServer(t, document, nil, 100)

	var res executor.SearchResult
	resp := getJSON(t, srv.URL+"/api/v1/search?q=times", &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
	want := []string{"of times, it", "of times."}
	if !slices.Equal(res.Windows, want) {
		t.Errorf("windows = %q, want %q", res.Windows, want)
	}

	stats := agg.Stats()
	if stats.TotalSearches != 1 || stats.LastIndex == nil {
		t.Errorf("analytics = %+v", stats)
	}
}

// TestRateLimitedAPI verifies the API is throttled per client while health
// checks stay reachable.
func TestRateLimitedAPI(t *testing.T) {
	srv, _ := newSearchServer(t, document, nil, 2)

	for i := 0; i < 2; i++ {
		if resp := getJSON(t, srv.URL+"/api/v1/search?q=it", nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status %d", i, resp.StatusCode)
		}
	}
	resp := getJSON(t, srv.URL+"/api/v1/search?q=it", nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if resp := getJSON(t, srv.URL+"/health", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

// TestPostgresDocumentSearch loads the document from a real table.
func TestPostgresDocumentSearch(t *testing.T) {
	db := skipIfNoPostgres(t)
	table := seedTable(t, db, "doc-1", document)

	l, err := loader.New(config.DocumentConfig{Source: config.SourcePostgres, Table: table, DocumentID: "doc-1"}, db)
	if err != nil {
		t.Fatalf("loader.New: %v", err)
	}
	engine, err := indexer.NewEngine(l, config.SearchConfig{ContextUnit: "words"}, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	built, err := engine.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := built.Index.Search("worst", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !slices.Equal(got, []string{"the worst of"}) {
		t.Errorf("Search = %q", got)
	}
}

// TestPostgresMissingDocument verifies a missing row surfaces as not found.
func TestPostgresMissingDocument(t *testing.T) {
	db := skipIfNoPostgres(t)
	table := seedTable(t, db, "doc-1", document)

	l, err := loader.New(config.DocumentConfig{Source: config.SourcePostgres, Table: table, DocumentID: "nope"}, db)
	if err != nil {
		t.Fatalf("loader.New: %v", err)
	}
	_, err = l.Load(context.Background())
	if !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
	if code := apperrors.HTTPStatusCode(err); code != http.StatusNotFound {
		t.Errorf("status = %d", code)
	}
}

// TestRedisCachedSearch verifies cache hits and invalidation against a real
// Redis behind the circuit breaker.
func TestRedisCachedSearch(t *testing.T) {
	client := skipIfNoRedis(t)
	store := cache.NewBreakerStore(client, resilience.CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Second,
	})
	namespace := fmt.Sprintf("it-%d", time.Now().UnixNano())
	qc := cache.New(store, time.Minute, namespace, nil)
	t.Cleanup(func() { qc.Invalidate(context.Background()) })

	srv, agg := newSearchServer(t, document, qc, 100)

	for i := 0; i < 2; i++ {
		if resp := getJSON(t, srv.URL+"/api/v1/search?q=best", nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("search %d: status %d", i, resp.StatusCode)
		}
	}

	var stats map[string]any
	getJSON(t, srv.URL+"/api/v1/cache/stats", &stats)
	if stats["hits"] != float64(1) || stats["breaker"] != "closed" {
		t.Errorf("cache stats = %v", stats)
	}
	if got := agg.Stats().CacheHits; got != 1 {
		t.Errorf("analytics cache hits = %d", got)
	}

	resp, err := http.Post(srv.URL+"/api/v1/cache/invalidate", "application/json", nil)
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("invalidate status = %d", resp.StatusCode)
	}
	if _, hit := qc.Get(context.Background(), cache.Query{Word: "best", ContextWords: 1}); hit {
		t.Error("entry survived invalidation")
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
