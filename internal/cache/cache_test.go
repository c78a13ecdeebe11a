package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet_RoundTrip(t *testing.T) {
	c := New(Options{})
	defer c.Stop()

	key := Key("invoke", "model-a", "hello")
	c.Put(key, "invoke", []byte("world"))

	v, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "world", string(v))
}

func TestGet_MissWhenAbsent(t *testing.T) {
	c := New(Options{})
	defer c.Stop()

	_, ok := c.Get("nonexistent")
	assert.False(t, ok)
}

func TestPerMethodTTL_Expires(t *testing.T) {
	c := New(Options{
		DefaultTTL: time.Hour,
		MethodTTL:  map[string]time.Duration{"invoke": 10 * time.Millisecond},
	})
	defer c.Stop()

	key := Key("invoke", "x")
	c.Put(key, "invoke", []byte("y"))

	_, ok := c.Get(key)
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get(key)
	assert.False(t, ok, "entry should have expired under its method-specific TTL")
}

func TestKey_IsDeterministicAndContentAddressed(t *testing.T) {
	k1 := Key("invoke", "model-a", "prompt-1")
	k2 := Key("invoke", "model-a", "prompt-1")
	k3 := Key("invoke", "model-a", "prompt-2")
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestGetOrLoad_DeduplicatesConcurrentCalls(t *testing.T) {
	c := New(Options{})
	defer c.Stop()

	var loadCount int64
	key := Key("invoke", "shared")

	var wg sync.WaitGroup
	results := make([][]byte, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, _, err := c.GetOrLoad(key, "invoke", func() ([]byte, error) {
				atomic.AddInt64(&loadCount, 1)
				time.Sleep(20 * time.Millisecond)
				return []byte("computed"), nil
			})
			require.NoError(t, err)
			results[idx] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&loadCount), "only one goroutine should have invoked load")
	for _, r := range results {
		assert.Equal(t, "computed", string(r))
	}
}

func TestGetOrLoad_UsesCacheOnSecondCall(t *testing.T) {
	c := New(Options{})
	defer c.Stop()

	var loadCount int64
	key := Key("invoke", "a")
	load := func() ([]byte, error) {
		atomic.AddInt64(&loadCount, 1)
		return []byte("v"), nil
	}

	_, hit1, err := c.GetOrLoad(key, "invoke", load)
	require.NoError(t, err)
	assert.False(t, hit1)

	_, hit2, err := c.GetOrLoad(key, "invoke", load)
	require.NoError(t, err)
	assert.True(t, hit2)
	assert.Equal(t, int64(1), atomic.LoadInt64(&loadCount))
}

func TestStats_TracksHitsAndMisses(t *testing.T) {
	c := New(Options{})
	defer c.Stop()

	key := Key("invoke", "k")
	c.Put(key, "invoke", []byte("v"))

	c.Get(key)
	c.Get("missing")

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 0.5, s.HitRate)
}

func TestEviction_WhenAtMaxSize(t *testing.T) {
	c := New(Options{MaxSize: 2})
	defer c.Stop()

	c.Put(Key("invoke", "1"), "invoke", []byte("a"))
	c.Put(Key("invoke", "2"), "invoke", []byte("b"))
	c.Put(Key("invoke", "3"), "invoke", []byte("c"))

	assert.LessOrEqual(t, c.Stats().Size, 2)
}
