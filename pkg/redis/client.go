// Package redis adapts go-redis/v9 to the query cache's needs: string
// get/set with TTL and namespace invalidation by SCAN pattern.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/config"
)

const (
	connectTimeout = 5 * time.Second
	scanBatch      = 100
)

// Nil is the error Get returns for a missing key.
const Nil = redis.Nil

type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings within ctx, bounded by a five second
// connect timeout.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// options accepts either host:port or a redis:// URL in Addr. Explicit
// Password, DB and PoolSize settings override what the URL carries.
func options(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Addr}
	if strings.Contains(cfg.Addr, "://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = connectTimeout
	return opts, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// FlushByPattern deletes every key matching the glob pattern, scanning and
// deleting in batches, and reports how many keys were removed.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Del(ctx, batch...).Result()
		deleted += n
		batch = batch[:0]
		if err != nil {
			return fmt.Errorf("deleting keys matching %s: %w", pattern, err)
		}
		return nil
	}

	it := c.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for it.Next(ctx) {
		if batch = append(batch, it.Val()); len(batch) == scanBatch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := it.Err(); err != nil {
		return deleted, fmt.Errorf("scanning keys matching %s: %w", pattern, err)
	}
	return deleted, flush()
}

// IsNilError reports whether err means the key was absent.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
