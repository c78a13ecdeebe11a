package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucket_TryAcquire_ConsumesTokens(t *testing.T) {
	b := NewBucket(5, 1)
	ok, _ := b.TryAcquire(5)
	assert.True(t, ok)

	ok, wait := b.TryAcquire(1)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
}

func TestBucket_Refills(t *testing.T) {
	start := time.Now()
	fixed := start
	b := NewBucket(2, 2) // 2 tokens/sec
	b.now = func() time.Time { return fixed }

	ok, _ := b.TryAcquire(2)
	assert.True(t, ok)

	ok, _ = b.TryAcquire(1)
	assert.False(t, ok)

	fixed = fixed.Add(600 * time.Millisecond) // refills 1.2 tokens
	ok, _ = b.TryAcquire(1)
	assert.True(t, ok)
}

func TestAcquire_SucceedsWhenTokensAvailable(t *testing.T) {
	b := NewBucket(10, 10)
	err := Acquire(context.Background(), b, 1, nil)
	assert.NoError(t, err)
}

func TestAcquire_RespectsContextCancellation(t *testing.T) {
	b := NewBucket(1, 0.001) // near-zero refill, so acquiring more blocks a long time
	_, _ = b.TryAcquire(1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := Acquire(ctx, b, 1, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquire_RespectsExternalCancelChannel(t *testing.T) {
	b := NewBucket(1, 0.001)
	_, _ = b.TryAcquire(1)

	cancel := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(cancel)
	}()

	err := Acquire(context.Background(), b, 1, cancel)
	assert.Error(t, err)
}

func TestLimiter_ComposesWithGlobalCeiling(t *testing.T) {
	global := NewGlobalRateLimiter(1, 1) // ceiling: 1 token total, refills slowly
	l1 := NewLimiter("adapter-a", 100, 100, global)
	l2 := NewLimiter("adapter-b", 100, 100, global)

	assert.NoError(t, l1.Acquire(context.Background(), 1, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l2.Acquire(ctx, 1, nil)
	assert.Error(t, err, "second adapter should be throttled by the shared ceiling")
}

func TestGlobalRateLimiter_Stats(t *testing.T) {
	g := NewGlobalRateLimiter(5, 10)
	tokens, capacity := g.Stats()
	assert.Equal(t, 10.0, tokens)
	assert.Equal(t, 10.0, capacity)
}
