package cache

import (
	"context"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/resilience"
)

// BreakerStore fails fast while the backing store is unhealthy so a Redis
// outage costs searches nothing beyond a miss. Key misses do not count as
// failures.
type BreakerStore struct {
	store Store
	cb    *resilience.CircuitBreaker
}

func NewBreakerStore(store Store, cfg resilience.CircuitBreakerConfig) *BreakerStore {
	cfg.IsFailure = func(err error) bool { return !pkgredis.IsNilError(err) }
	return &BreakerStore{store: store, cb: resilience.NewCircuitBreaker("query-cache", cfg)}
}

func (b *BreakerStore) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := b.cb.Execute(func() error {
		var err error
		val, err = b.store.Get(ctx, key)
		return err
	})
	return val, err
}

func (b *BreakerStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return b.cb.Execute(func() error {
		return b.store.Set(ctx, key, value, ttl)
	})
}

func (b *BreakerStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var n int64
	err := b.cb.Execute(func() error {
		var err error
		n, err = b.store.FlushByPattern(ctx, pattern)
		return err
	})
	return n, err
}

// State reports the breaker state.
func (b *BreakerStore) State() resilience.State {
	return b.cb.State()
}
