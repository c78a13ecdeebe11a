// Package ratelimit implements the token-bucket limiter spec §4.2 asks
// every Adapter to respect: Acquire(weight) blocks until weight tokens are
// available or the caller cancels, refilling continuously off a monotonic
// clock rather than on a fixed tick.
//
// Neither of the teacher's off-the-shelf options fit: telemetry.RateLimiter
// is a one-action-per-interval limiter with no weighted acquisition, and
// golang.org/x/time/rate has no notion of the GlobalRateLimiter composition
// this package needs (acquiring against a shared cross-adapter ceiling AND
// then an adapter-specific bucket). So this is hand-rolled, in the
// teacher's style: plain mutex-guarded struct, jittered backoff borrowed
// from resilience/retry.go's sin-based jitter.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/aipolab/aipo/internal/core"
)

// Bucket is a single token bucket: capacity tokens, refilled continuously
// at refillPerSec tokens/second, never exceeding capacity.
type Bucket struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillPerSec float64
	lastRefill   time.Time
	now          func() time.Time
}

// NewBucket creates a Bucket starting full.
func NewBucket(capacity float64, refillPerSec float64) *Bucket {
	return &Bucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPerSec: refillPerSec,
		lastRefill:   time.Now(),
		now:          time.Now,
	}
}

func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillPerSec)
	b.lastRefill = now
}

// TryAcquire attempts to take weight tokens without blocking. It reports
// whether the acquisition succeeded, and if not, how long the caller should
// wait before retrying.
func (b *Bucket) TryAcquire(weight float64) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= weight {
		b.tokens -= weight
		return true, 0
	}

	deficit := weight - b.tokens
	if b.refillPerSec <= 0 {
		return false, time.Second
	}
	wait := time.Duration(deficit / b.refillPerSec * float64(time.Second))
	return false, wait
}

// jitter adds up to 10% bounded randomness to a backoff delay, using the
// same sin-based jitter the teacher's retry helper uses to avoid a
// thundering herd of simultaneous retries.
func jitter(base time.Duration, attempt int) time.Duration {
	j := time.Duration(float64(base) * 0.1 * math.Abs(math.Sin(float64(attempt))))
	return base + j
}

// Acquire blocks until weight tokens are available from b, the context is
// canceled, or cancel fires, whichever happens first.
func Acquire(ctx context.Context, b *Bucket, weight float64, cancel <-chan struct{}) error {
	attempt := 0
	for {
		ok, wait := b.TryAcquire(weight)
		if ok {
			return nil
		}
		attempt++
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		timer := time.NewTimer(jitter(wait, attempt))
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

// Limiter is the per-adapter rate limiter an Adapter implementation holds,
// composing its own bucket with an optional shared GlobalRateLimiter ceiling.
type Limiter struct {
	name   string
	bucket *Bucket
	global *GlobalRateLimiter
}

// NewLimiter builds a Limiter from spec §4.2 RateLimitParams-shaped values:
// requestsPerSecond is the steady-state refill rate, burst is the bucket
// capacity.
func NewLimiter(name string, requestsPerSecond float64, burst float64, global *GlobalRateLimiter) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		name:   name,
		bucket: NewBucket(burst, requestsPerSecond),
		global: global,
	}
}

// Acquire reserves weight tokens from both this adapter's bucket and, if
// configured, the shared global ceiling. It acquires the global ceiling
// first so adapters never starve each other's local buckets while still
// waiting on a cross-adapter budget.
func (l *Limiter) Acquire(ctx context.Context, weight int, cancel <-chan struct{}) error {
	if weight < 1 {
		weight = 1
	}
	if l.global != nil {
		if err := l.global.acquireFor(ctx, l.name, float64(weight), cancel); err != nil {
			return err
		}
	}
	return Acquire(ctx, l.bucket, float64(weight), cancel)
}

// GlobalRateLimiter composes per-adapter buckets under one shared ceiling
// bucket, so a run-wide budget (e.g. "no more than 50 req/s across every
// adapter combined") coexists with each adapter's own limit.
type GlobalRateLimiter struct {
	shared *Bucket
}

// NewGlobalRateLimiter creates a shared ceiling bucket that every Limiter
// registered against it draws from in addition to its own per-adapter
// bucket.
func NewGlobalRateLimiter(sharedRPS, sharedBurst float64) *GlobalRateLimiter {
	if sharedBurst < 1 {
		sharedBurst = 1
	}
	return &GlobalRateLimiter{
		shared: NewBucket(sharedBurst, sharedRPS),
	}
}

func (g *GlobalRateLimiter) acquireFor(ctx context.Context, name string, weight float64, cancel <-chan struct{}) error {
	return Acquire(ctx, g.shared, weight, cancel)
}

// Stats reports the current token level of the shared ceiling bucket, for
// telemetry gauges.
func (g *GlobalRateLimiter) Stats() (tokens float64, capacity float64) {
	g.shared.mu.Lock()
	defer g.shared.mu.Unlock()
	g.shared.refillLocked()
	return g.shared.tokens, g.shared.capacity
}
