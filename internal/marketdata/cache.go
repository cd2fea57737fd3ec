package marketdata

import (
	"sync"
	"time"
)

// DefaultCacheTTL is the snapshot freshness window when none is configured.
const DefaultCacheTTL = 5 * time.Minute

// CacheStats describes the cache contents at the instant of the Stats call.
// Valid/expired are recomputed against the TTL on every call, not tracked
// incrementally.
type CacheStats struct {
	TotalEntries   int     `json:"total_entries"`
	ValidEntries   int     `json:"valid_entries"`
	ExpiredEntries int     `json:"expired_entries"`
	TTLMinutes     float64 `json:"ttl_minutes"`
}

type cacheEntry struct {
	snapshot  Snapshot
	fetchedAt time.Time
}

// Cache is a TTL-bounded in-memory price cache. Expired entries are evicted
// lazily on Get; there is no background sweep and no entry limit.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache returns a cache with the given TTL (DefaultCacheTTL if ttl <= 0).
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached snapshot for symbol if still within TTL. A miss due
// to expiry removes the stale entry.
func (c *Cache) Get(symbol string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[symbol]
	if !ok {
		return Snapshot{}, false
	}
	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		delete(c.entries, symbol)
		return Snapshot{}, false
	}
	return entry.snapshot, true
}

// Set unconditionally overwrites the entry for symbol.
func (c *Cache) Set(symbol string, snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = cacheEntry{snapshot: snapshot, fetchedAt: c.now()}
}

// Remove drops a single symbol from the cache.
func (c *Cache) Remove(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, symbol)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Stats counts total/valid/expired entries at the time of the call.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats := CacheStats{
		TotalEntries: len(c.entries),
		TTLMinutes:   c.ttl.Minutes(),
	}
	for _, entry := range c.entries {
		if now.Sub(entry.fetchedAt) < c.ttl {
			stats.ValidEntries++
		} else {
			stats.ExpiredEntries++
		}
	}
	return stats
}
