package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultCapacity is the maximum number of entries an EphemeralCache holds.
const DefaultCapacity = 100

// EphemeralCache is the process-lifetime cache of the proxy service. It is
// bounded: once more than capacity entries are present, the entries with the
// oldest timestamps are evicted first. Safe for concurrent use.
type EphemeralCache struct {
	mu       sync.Mutex
	entries  map[string]*CacheEntry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// EphemeralOption configures an EphemeralCache.
type EphemeralOption func(*EphemeralCache)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) EphemeralOption {
	return func(c *EphemeralCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithEphemeralTTL overrides DefaultTTL.
func WithEphemeralTTL(ttl time.Duration) EphemeralOption {
	return func(c *EphemeralCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithEphemeralClock sets the time source.
func WithEphemeralClock(now func() time.Time) EphemeralOption {
	return func(c *EphemeralCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewEphemeralCache creates an empty cache.
func NewEphemeralCache(opts ...EphemeralOption) *EphemeralCache {
	c := &EphemeralCache{
		entries:  make(map[string]*CacheEntry),
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the fresh entry for key. Expired entries are removed.
func (c *EphemeralCache) Lookup(key CacheKey) (*CacheEntry, bool) {
	k := key.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[k]
	if !ok {
		CacheMisses.WithLabelValues(TierServer).Inc()
		return nil, false
	}
	if entry.IsExpired(c.now(), c.ttl) {
		delete(c.entries, k)
		CacheEntries.Set(float64(len(c.entries)))
		CacheExpirations.WithLabelValues(TierServer).Inc()
		CacheMisses.WithLabelValues(TierServer).Inc()
		return nil, false
	}

	CacheHits.WithLabelValues(TierServer).Inc()
	return entry, true
}

// Store inserts or replaces the entry for key, then evicts oldest entries
// until the cache is back within capacity.
func (c *EphemeralCache) Store(key CacheKey, data json.RawMessage) {
	k := key.String()
	entry := &CacheEntry{Data: data, Timestamp: c.now()}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[k] = entry
	for len(c.entries) > c.capacity {
		c.evictOldest()
	}
	CacheEntries.Set(float64(len(c.entries)))
}

// evictOldest removes the entry with the smallest timestamp. Ties are broken
// by key so eviction order is deterministic. Caller holds c.mu.
func (c *EphemeralCache) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.Timestamp.Before(oldest) || (e.Timestamp.Equal(oldest) && k < oldestKey) {
			oldestKey, oldest, found = k, e.Timestamp, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		CacheEvictions.Inc()
	}
}

// Len returns the number of entries, fresh or not.
func (c *EphemeralCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the configured entry ceiling.
func (c *EphemeralCache) Capacity() int {
	return c.capacity
}

// Clear removes all entries.
func (c *EphemeralCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mu.Unlock()
	CacheEntries.Set(0)
}
