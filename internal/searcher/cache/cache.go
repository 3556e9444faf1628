package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/redis"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Query identifies a cacheable search.
type Query struct {
	Word         string
	ContextWords int
	WithMatches  bool
}

// QueryCache caches search results for one document. namespace separates
// documents that share a Redis instance and should change whenever the
// document or context unit does.
type QueryCache struct {
	store     Store
	ttl       time.Duration
	namespace string
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

func New(store Store, ttl time.Duration, namespace string, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:     store,
		ttl:       ttl,
		namespace: namespace,
		metrics:   m,
		logger:    slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, q Query) (*executor.SearchResult, bool) {
	key := c.buildKey(q)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "word", q.Word, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, q Query, result *executor.SearchResult) {
	key := c.buildKey(q)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for q or computes, stores and
// returns it. Concurrent misses for the same key share one computation,
// which runs detached from any single caller's cancellation; each caller
// stops waiting when its own ctx is done.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	q Query,
	computeFn func(ctx context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, q); ok {
		return result, true, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.buildKey(q), func() (any, error) {
		result, err := computeFn(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, q, result)
		return result, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*executor.SearchResult), false, nil
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%w: waiting for search: %w", apperrors.ErrTimeout, ctx.Err())
	}
}

// Invalidate removes every entry in this cache's namespace.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	pattern := keyPrefix + c.namespace + ":*"
	deleted, err := c.store.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports the circuit state of a BreakerStore, or "none".
func (c *QueryCache) BreakerState() string {
	if b, ok := c.store.(*BreakerStore); ok {
		return b.State().String()
	}
	return "none"
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) buildKey(q Query) string {
	raw := fmt.Sprintf("%s|context=%d|matches=%t", index.Normalize(q.Word), q.ContextWords, q.WithMatches)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, c.namespace, hash[:16])
}
