package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetThenGetWithinTTL(t *testing.T) {
	cache := NewCache(5 * time.Minute)
	snapshot := Snapshot{Symbol: "AAPL", Price: 150.0, Currency: "USD"}

	cache.Set("AAPL", snapshot)
	got, ok := cache.Get("AAPL")
	assert.True(t, ok)
	assert.Equal(t, snapshot, got)
}

func TestCache_GetAfterTTLEvictsEntry(t *testing.T) {
	cache := NewCache(5 * time.Minute)
	base := time.Now()
	cache.now = func() time.Time { return base }

	cache.Set("AAPL", Snapshot{Symbol: "AAPL", Price: 150.0})
	assert.Equal(t, 1, cache.Stats().TotalEntries)

	cache.now = func() time.Time { return base.Add(6 * time.Minute) }
	_, ok := cache.Get("AAPL")
	assert.False(t, ok)

	// Lazy expiry removed the stale entry.
	assert.Equal(t, 0, cache.Stats().TotalEntries)
}

func TestCache_SetOverwrites(t *testing.T) {
	cache := NewCache(5 * time.Minute)
	cache.Set("AAPL", Snapshot{Symbol: "AAPL", Price: 150.0})
	cache.Set("AAPL", Snapshot{Symbol: "AAPL", Price: 151.5})

	got, ok := cache.Get("AAPL")
	assert.True(t, ok)
	assert.Equal(t, 151.5, got.Price)
}

func TestCache_RemoveAndClear(t *testing.T) {
	cache := NewCache(5 * time.Minute)
	cache.Set("AAPL", Snapshot{Symbol: "AAPL", Price: 150.0})
	cache.Set("MSFT", Snapshot{Symbol: "MSFT", Price: 300.0})

	cache.Remove("AAPL")
	_, ok := cache.Get("AAPL")
	assert.False(t, ok)
	_, ok = cache.Get("MSFT")
	assert.True(t, ok)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().TotalEntries)
}

func TestCache_StatsCountsValidAndExpired(t *testing.T) {
	cache := NewCache(5 * time.Minute)
	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.Set("AAPL", Snapshot{Symbol: "AAPL", Price: 150.0})

	cache.now = func() time.Time { return base.Add(4 * time.Minute) }
	cache.Set("MSFT", Snapshot{Symbol: "MSFT", Price: 300.0})

	cache.now = func() time.Time { return base.Add(6 * time.Minute) }
	stats := cache.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.ValidEntries)
	assert.Equal(t, 1, stats.ExpiredEntries)
	assert.Equal(t, 5.0, stats.TTLMinutes)
}
