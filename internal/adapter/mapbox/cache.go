package mapbox

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/risk-zone-service/internal/domain"
	"github.com/couchcryptid/risk-zone-service/internal/observability"
	"github.com/patrickmn/go-cache"
)

// CachedGeocoder wraps a Geocoder with an in-memory expiring cache.
type CachedGeocoder struct {
	inner      domain.Geocoder
	cache      *cache.Cache
	maxEntries int
	metrics    *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder. Entries
// expire after ttl; once maxEntries live entries are held, new results are
// not cached until older ones expire.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:      inner,
		cache:      cache.New(ttl, 2*ttl),
		maxEntries: maxEntries,
		metrics:    metrics,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	key := fmt.Sprintf("rev:%.6f,%.6f", lat, lon)
	if v, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues(methodReverse, "hit").Inc()
		return v.(domain.GeocodingResult), nil
	}
	c.metrics.GeocodeCache.WithLabelValues(methodReverse, "miss").Inc()

	result, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if result.FormattedAddress != "" {
		c.put(key, result)
	}
	return result, nil
}

func (c *CachedGeocoder) put(key string, result domain.GeocodingResult) {
	if c.cache.ItemCount() >= c.maxEntries {
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxEntries {
			return
		}
	}
	c.cache.Set(key, result, cache.DefaultExpiration)
}

// Len reports the number of cached entries, including expired ones not yet evicted.
func (c *CachedGeocoder) Len() int {
	return c.cache.ItemCount()
}
