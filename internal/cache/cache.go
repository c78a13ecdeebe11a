// Package cache implements the ResponseCache spec §4.3 requires TestRunner
// and Adapter wire through: content-addressed keying over (adapter kind,
// model, prompt, tool state), a per-adapter-method TTL, and single-flight
// deduplication so concurrent workers asking the same question in the same
// instant produce exactly one upstream call.
//
// Grounded on orchestration/cache.go's SimpleCache: same expiresAt-map
// shape, same periodic eviction goroutine, same sha256-hashed key and
// CacheStats reporting. The teacher's cache stores *RoutingPlan; this one
// stores arbitrary response payloads and adds single-flight, which the
// teacher's cache never needed because routing plans were computed
// in-process rather than fetched from a rate-limited remote.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// Stats mirrors orchestration.CacheStats, renamed to this package's domain.
type Stats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// ResponseCache is a content-addressed, TTL-bucketed cache with single-flight
// materialization. A zero value is not usable; construct with New.
type ResponseCache struct {
	mu              sync.RWMutex
	items           map[string]*entry
	stats           Stats
	maxSize         int
	defaultTTL      time.Duration
	methodTTL       map[string]time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}

	flightMu sync.Mutex
	inFlight map[string]*flightCall
}

type flightCall struct {
	done chan struct{}
	val  []byte
	hit  bool
	err  error
}

// Options configures a ResponseCache.
type Options struct {
	MaxSize         int
	DefaultTTL      time.Duration
	MethodTTL       map[string]time.Duration
	CleanupInterval time.Duration
}

// New creates a ResponseCache and starts its background eviction loop.
func New(opts Options) *ResponseCache {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 10000
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	c := &ResponseCache{
		items:           make(map[string]*entry),
		maxSize:         opts.MaxSize,
		defaultTTL:      opts.DefaultTTL,
		methodTTL:       opts.MethodTTL,
		cleanupInterval: opts.CleanupInterval,
		stopCleanup:     make(chan struct{}),
		inFlight:        make(map[string]*flightCall),
	}
	go c.cleanupLoop()
	return c
}

// Key computes the content-addressed cache key for a request: the adapter
// method name plus every field that affects the response (model, prompt,
// tool schema, and anything else the caller wants bound into identity).
func Key(method string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(method))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks up a raw cached value.
func (c *ResponseCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found {
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}
	c.stats.Hits++
	c.updateHitRate()
	return item.value, true
}

// GetJSON is Get plus JSON-decoding into dst.
func (c *ResponseCache) GetJSON(key string, dst interface{}) (bool, error) {
	raw, ok := c.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Put stores value under key with the TTL registered for method (or the
// cache's default TTL if method has no override).
func (c *ResponseCache) Put(key, method string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.maxSize {
		c.evictExpiredLocked()
		if len(c.items) >= c.maxSize {
			c.evictOldestLocked()
		}
	}

	ttl := c.defaultTTL
	if override, ok := c.methodTTL[method]; ok {
		ttl = override
	}
	c.items[key] = &entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.stats.Size = len(c.items)
}

// PutJSON JSON-encodes value and stores it.
func (c *ResponseCache) PutJSON(key, method string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.Put(key, method, raw)
	return nil
}

// GetOrLoad performs single-flight deduplication: if key is already being
// loaded by another goroutine, it waits for that result instead of invoking
// load again. Use this from Adapter implementations so concurrent workers
// with an identical cache key only trigger one upstream call.
func (c *ResponseCache) GetOrLoad(key, method string, load func() ([]byte, error)) ([]byte, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	c.flightMu.Lock()
	if call, ok := c.inFlight[key]; ok {
		c.flightMu.Unlock()
		<-call.done
		return call.val, call.hit, call.err
	}

	call := &flightCall{done: make(chan struct{})}
	c.inFlight[key] = call
	c.flightMu.Unlock()

	val, err := load()
	if err == nil {
		c.Put(key, method, val)
	}

	call.val, call.hit, call.err = val, false, err
	close(call.done)

	c.flightMu.Lock()
	delete(c.inFlight, key)
	c.flightMu.Unlock()

	return val, false, err
}

// Clear empties the cache.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry)
	c.stats.Size = 0
}

// Stats reports current cache metrics.
func (c *ResponseCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}

// Stop halts the background cleanup goroutine.
func (c *ResponseCache) Stop() {
	close(c.stopCleanup)
}

func (c *ResponseCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.evictExpiredLocked()
			c.stats.Size = len(c.items)
			c.mu.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *ResponseCache) evictExpiredLocked() {
	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
			c.stats.Evictions++
		}
	}
}

func (c *ResponseCache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	for key, item := range c.items {
		if oldestTime.IsZero() || item.expiresAt.Before(oldestTime) {
			oldestKey, oldestTime = key, item.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.stats.Evictions++
	}
}

func (c *ResponseCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
