package scrape

import (
	"sync"
	"time"
)

type cacheEntry struct {
	res       Result
	expiresAt time.Time
}

// seasonCache keeps found results for a fixed TTL. A zero TTL disables it.
type seasonCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func newSeasonCache(ttl time.Duration, now func() time.Time) *seasonCache {
	return &seasonCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *seasonCache) get(key string) (Result, bool) {
	if c.ttl <= 0 {
		return Result{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.res, true
}

func (c *seasonCache) put(key string, res Result) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{res: res, expiresAt: c.now().Add(c.ttl)}
}
