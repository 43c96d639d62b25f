package routing

import (
	"sync"
	"time"

	"github.com/UnknownOlympus/hermes/internal/geo"
	"github.com/UnknownOlympus/hermes/internal/models"
)

const (
	// cacheKeyDecimals rounds origin and destination to ~110 m so that
	// near-repeat queries share an entry.
	cacheKeyDecimals = 3
	// cacheTimeBucket floors the target arrival to a 5-minute boundary.
	cacheTimeBucket = 5 * time.Minute
	// cacheTTL is how long a stored route stays valid.
	cacheTTL = 5 * time.Minute
)

type cacheKey struct {
	originLat, originLon float64
	destLat, destLon     float64
	arriveBucket         int64
}

type cacheEntry struct {
	result   models.RouteResult
	storedAt time.Time
}

// routeCache stores route results keyed by rounded origin, rounded destination
// and bucketed arrival time. Expired entries are evicted lazily on read and
// swept opportunistically on write.
type routeCache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newRouteCache() *routeCache {
	return &routeCache{
		entries: make(map[cacheKey]cacheEntry),
		ttl:     cacheTTL,
		now:     time.Now,
	}
}

func makeCacheKey(origin, destination models.Coordinates, arriveBy time.Time) cacheKey {
	ro := geo.RoundCoord(origin, cacheKeyDecimals)
	rd := geo.RoundCoord(destination, cacheKeyDecimals)
	return cacheKey{
		originLat:    ro.Latitude,
		originLon:    ro.Longitude,
		destLat:      rd.Latitude,
		destLon:      rd.Longitude,
		arriveBucket: geo.BucketTime(arriveBy, cacheTimeBucket).Unix(),
	}
}

// get returns a copy of a fresh cached result, marked as served from cache.
func (c *routeCache) get(origin, destination models.Coordinates, arriveBy time.Time) (*models.RouteResult, bool) {
	key := makeCacheKey(origin, destination, arriveBy)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}

	result := entry.result
	result.IsCached = true
	result.CachedAt = entry.storedAt
	return &result, true
}

// put stores a result and sweeps any entries that have expired in the meantime.
func (c *routeCache) put(origin, destination models.Coordinates, arriveBy time.Time, result models.RouteResult) {
	key := makeCacheKey(origin, destination, arriveBy)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}

	result.IsCached = false
	c.entries[key] = cacheEntry{result: result, storedAt: now}
}
