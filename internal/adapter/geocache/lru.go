package geocache

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/observability"
)

// LRU wraps a Geocoder with an in-process LRU cache.
type LRU struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, domain.GeocodingResult]
	metrics *observability.Metrics
}

// NewLRU creates a cache decorator holding at most size entries.
func NewLRU(inner domain.Geocoder, size int, metrics *observability.Metrics) (*LRU, error) {
	cache, err := lru.New[string, domain.GeocodingResult](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRU{inner: inner, cache: cache, metrics: metrics}, nil
}

// Geocode implements domain.Geocoder.
func (c *LRU) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	key := normalize(query)
	if result, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("memory", "hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("memory", "miss").Inc()

	result, err := c.inner.Geocode(ctx, query)
	if err != nil {
		return result, err
	}
	// Only found results are cached so "not found" can be retried next run.
	if result.Found() {
		c.cache.Add(key, result)
	}
	return result, nil
}

// Len is the number of cached entries.
func (c *LRU) Len() int { return c.cache.Len() }

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
