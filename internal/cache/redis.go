package cache

import (
	"context"
	"errors"
	"time"

	"github.com/aipolab/aipo/internal/core"
)

// RedisBackend lets a ResponseCache key miss fall through to a shared Redis
// instance (core.RedisDBCache) before invoking the adapter, so multiple
// `aipo run` processes pointed at the same model reuse each other's cached
// responses instead of each paying for their own cold cache.
type RedisBackend struct {
	client *core.RedisClient
}

// NewRedisBackend wraps an already-connected namespaced RedisClient.
func NewRedisBackend(client *core.RedisClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// Get fetches a raw value from the distributed tier.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, core.ErrRedisNil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(val), true, nil
}

// Put writes a raw value to the distributed tier with ttl.
func (b *RedisBackend) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl)
}

// GetOrLoadDistributed is GetOrLoad's cross-process counterpart: it checks
// the local in-memory cache first, then the shared Redis tier, and only
// calls load (and populates both tiers) on a full miss. SetNX elects one
// writer across processes racing the same key, mirroring the single-flight
// behavior ResponseCache.GetOrLoad gives within one process.
func (c *ResponseCache) GetOrLoadDistributed(ctx context.Context, backend *RedisBackend, key, method string, ttl time.Duration, load func() ([]byte, error)) ([]byte, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	if backend != nil {
		if v, ok, err := backend.Get(ctx, key); err == nil && ok {
			c.Put(key, method, v)
			return v, true, nil
		}
	}

	v, hit, err := c.GetOrLoad(key, method, load)
	if err == nil && !hit && backend != nil {
		_, _ = backend.client.SetNX(ctx, key, v, ttl)
	}
	return v, hit, err
}
