package geocache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/observability"
)

const keyPrefix = "geonews:geocode:"

// Redis wraps a Geocoder with a shared cache that survives across runs.
// Redis failures are logged and fall through to the inner geocoder.
type Redis struct {
	inner   domain.Geocoder
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRedis creates a Redis cache decorator. Entries expire after ttl.
func NewRedis(inner domain.Geocoder, client *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Redis {
	return &Redis{
		inner:   inner,
		client:  client,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// NewClientFromURL parses a redis:// URL and verifies the connection.
func NewClientFromURL(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Geocode implements domain.Geocoder.
func (c *Redis) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	key := keyPrefix + normalize(query)

	if result, ok := c.get(ctx, key); ok {
		c.metrics.GeocodeCache.WithLabelValues("redis", "hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("redis", "miss").Inc()

	result, err := c.inner.Geocode(ctx, query)
	if err != nil {
		return result, err
	}
	if result.Found() {
		c.set(ctx, key, result)
	}
	return result, nil
}

func (c *Redis) get(ctx context.Context, key string) (domain.GeocodingResult, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GeocodingResult{}, false
	}
	if err != nil {
		c.logger.Warn("geocode cache read failed", "key", key, "error", err)
		return domain.GeocodingResult{}, false
	}

	var result domain.GeocodingResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("geocode cache entry corrupt", "key", key, "error", err)
		return domain.GeocodingResult{}, false
	}
	return result, true
}

func (c *Redis) set(ctx context.Context, key string, result domain.GeocodingResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("geocode cache write failed", "key", key, "error", err)
	}
}
