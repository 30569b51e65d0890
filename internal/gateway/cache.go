package gateway

import (
	"net/url"
	"sync"
	"time"
)

const (
	// DefaultCacheSize bounds the number of live response entries.
	DefaultCacheSize = 100
	// DefaultCacheTTL is how long a cached response stays servable.
	DefaultCacheTTL = 30 * time.Second
)

// cacheEntry is one cached GET response.
type cacheEntry struct {
	data     []byte
	etag     string
	cachedAt time.Time
}

// responseCache is a bounded in-memory response cache. Eviction is strict
// insertion-order FIFO: re-writing a live key does not move it, so the
// oldest-inserted key is always the first to go. Expired entries are dropped
// lazily on read.
type responseCache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	entries map[string]cacheEntry
	order   []string // oldest first
	now     func() time.Time
}

func newResponseCache(max int, ttl time.Duration) *responseCache {
	if max <= 0 {
		max = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &responseCache{
		max:     max,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// cacheKey derives the cache key from the request URL and query params.
// url.Values.Encode sorts keys, so equivalent param sets collide as they
// should.
func cacheKey(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

// get returns the cached body and etag for key, or ok=false on miss or
// expiry.
func (c *responseCache) get(key string) (data []byte, etag string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[key]
	if !found {
		return nil, "", false
	}
	if c.now().Sub(e.cachedAt) > c.ttl {
		c.remove(key)
		return nil, "", false
	}
	return e.data, e.etag, true
}

// put stores a response body under key, evicting the oldest entry when the
// bound is reached.
func (c *responseCache) put(key string, data []byte, etag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		for len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{
		data:     append([]byte(nil), data...),
		etag:     etag,
		cachedAt: c.now(),
	}
}

// clear drops every entry. Called on any successful mutation.
func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.order = c.order[:0]
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove deletes key and its order slot. Caller holds c.mu.
func (c *responseCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
