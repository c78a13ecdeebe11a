package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aipolab/aipo/internal/core"
)

// RedisLimiter is a distributed token-bucket counter backed by a namespaced
// core.RedisClient (DB core.RedisDBRateLimit), used when multiple `aipo run`
// processes must share one rate budget against the same target endpoint.
// It uses a simple fixed-window counter rather than a continuous-refill
// bucket: Redis round trips make sub-second continuous refill expensive to
// get right across processes, and spec §4.2 only requires the budget to
// hold over a window, not to smooth bursts within it.
type RedisLimiter struct {
	client *core.RedisClient
	window time.Duration
	limit  int64
}

// NewRedisLimiter builds a fixed-window distributed limiter: at most limit
// acquisitions per window, shared across every process pointed at the same
// Redis instance and namespace.
func NewRedisLimiter(client *core.RedisClient, window time.Duration, limit int64) *RedisLimiter {
	return &RedisLimiter{client: client, window: window, limit: limit}
}

// Acquire increments the current window's counter for key and blocks,
// retrying with jitter, until the counter is under the limit or ctx/cancel
// fires.
func (r *RedisLimiter) Acquire(ctx context.Context, key string, cancel <-chan struct{}) error {
	attempt := 0
	for {
		windowKey := fmt.Sprintf("rl:%s:%d", key, time.Now().UnixNano()/int64(r.window))
		count, err := r.client.Incr(ctx, windowKey)
		if err != nil {
			return core.NewFrameworkError("RedisLimiter.Acquire", "infrastructure", fmt.Errorf("%w: %v", core.ErrTransientError, err))
		}
		if count == 1 {
			_ = r.client.Expire(ctx, windowKey, r.window)
		}
		if count <= r.limit {
			return nil
		}

		attempt++
		timer := time.NewTimer(jitter(50*time.Millisecond, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-cancel:
			timer.Stop()
			return core.ErrAcquireCanceled
		case <-timer.C:
		}
	}
}
