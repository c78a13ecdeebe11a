package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis database allocation. Components that opt into distributed state
// (the GlobalRateLimiter and the optional Redis-backed ResponseCache) claim
// one DB each so they never collide on the same instance.
const (
	RedisDBRateLimit  = 1
	RedisDBCache      = 2
	RedisDBMemory     = 3
)

// RedisClient wraps go-redis with DB isolation and key namespacing, the way
// the teacher framework's core.RedisClient does.
type RedisClient struct {
	client    *redis.Client
	dbID      int
	namespace string
	logger    Logger
}

// RedisClientOptions configures a RedisClient.
type RedisClientOptions struct {
	RedisURL  string
	DB        int
	Namespace string
	Logger    Logger
}

// NewRedisClient connects to Redis with DB isolation, verifying the
// connection with a bounded Ping before returning.
func NewRedisClient(opts RedisClientOptions) (*RedisClient, error) {
	if opts.RedisURL == "" {
		return nil, NewFrameworkError("NewRedisClient", "config", ErrMissingConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, NewFrameworkError("NewRedisClient", "config", fmt.Errorf("%w: %v", ErrInvalidConfiguration, err))
	}
	if opts.DB >= 0 && opts.DB <= 15 {
		redisOpt.DB = opts.DB
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, NewFrameworkError("NewRedisClient", "infrastructure", fmt.Errorf("%w: %v", ErrTransientError, err))
	}

	logger := opts.Logger
	if logger == nil {
		logger = NoOpLogger{}
	}
	logger.Info("redis client connected", map[string]interface{}{"db": opts.DB, "namespace": opts.Namespace})

	return &RedisClient{client: client, dbID: opts.DB, namespace: opts.Namespace, logger: logger}, nil
}

func (r *RedisClient) Close() error { return r.client.Close() }

func (r *RedisClient) formatKey(key string) string {
	if r.namespace != "" {
		return fmt.Sprintf("%s:%s", r.namespace, key)
	}
	return key
}

func (r *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, r.formatKey(key)).Result()
}

func (r *RedisClient) IncrBy(ctx context.Context, key string, value int64) (int64, error) {
	return r.client.IncrBy(ctx, r.formatKey(key), value).Result()
}

func (r *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, r.formatKey(key), ttl).Err()
}

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, r.formatKey(key)).Result()
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, r.formatKey(key), value, ttl).Err()
}

func (r *RedisClient) Del(ctx context.Context, keys ...string) error {
	formatted := make([]string, len(keys))
	for i, k := range keys {
		formatted[i] = r.formatKey(k)
	}
	return r.client.Del(ctx, formatted...).Err()
}

func (r *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, r.formatKey(key)).Result()
}

// SetNX sets a key only if it doesn't already exist — used by the cache's
// single-flight materialization to elect exactly one writer per key.
func (r *RedisClient) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.formatKey(key), value, ttl).Result()
}

func (r *RedisClient) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// ErrRedisNil re-exposes go-redis's sentinel "key not found" error so callers
// outside this package can compare against it with errors.Is without
// importing go-redis directly.
var ErrRedisNil = redis.Nil
