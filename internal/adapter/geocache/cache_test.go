package geocache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/observability"
)

// --- mock geocoder ---

type countingGeocoder struct {
	calls  int
	result domain.GeocodingResult
	err    error
}

func (m *countingGeocoder) Geocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

var tokyo = domain.GeocodingResult{Lat: 35.6769, Lon: 139.7639, FormattedAddress: "Tokyo, Japan", PlaceName: "Tokyo", Confidence: 0.9}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- LRU ---

func TestLRU_CacheHit(t *testing.T) {
	inner := &countingGeocoder{result: tokyo}
	metrics := observability.NewMetricsForTesting()
	cached, err := NewLRU(inner, 10, metrics)
	require.NoError(t, err)

	r1, err := cached.Geocode(context.Background(), "Tokyo")
	require.NoError(t, err)
	r2, err := cached.Geocode(context.Background(), "  TOKYO ")
	require.NoError(t, err)

	assert.Equal(t, tokyo, r1)
	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("memory", "hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("memory", "miss")), 0)
}

func TestLRU_DoesNotCacheNotFound(t *testing.T) {
	inner := &countingGeocoder{}
	cached, err := NewLRU(inner, 10, observability.NewMetricsForTesting())
	require.NoError(t, err)

	_, _ = cached.Geocode(context.Background(), "Atlantis")
	_, _ = cached.Geocode(context.Background(), "Atlantis")

	assert.Equal(t, 2, inner.calls)
	assert.Zero(t, cached.Len())
}

func TestLRU_DoesNotCacheErrors(t *testing.T) {
	inner := &countingGeocoder{err: domain.ErrGeocodeTimeout}
	cached, err := NewLRU(inner, 10, observability.NewMetricsForTesting())
	require.NoError(t, err)

	_, err = cached.Geocode(context.Background(), "Tokyo")
	require.ErrorIs(t, err, domain.ErrGeocodeTimeout)
	assert.Zero(t, cached.Len())
}

func TestLRU_Eviction(t *testing.T) {
	inner := &countingGeocoder{result: tokyo}
	cached, err := NewLRU(inner, 2, observability.NewMetricsForTesting())
	require.NoError(t, err)

	ctx := context.Background()
	for _, q := range []string{"a", "b", "c"} {
		_, err := cached.Geocode(ctx, q)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cached.Len())

	// "a" was evicted; fetching it again calls inner.
	_, _ = cached.Geocode(ctx, "a")
	assert.Equal(t, 4, inner.calls)
}

func TestNewLRU_InvalidSize(t *testing.T) {
	_, err := NewLRU(&countingGeocoder{}, 0, observability.NewMetricsForTesting())
	require.Error(t, err)
}

// --- Redis ---

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedis_CacheHitAcrossInstances(t *testing.T) {
	_, client := newTestRedis(t)
	metrics := observability.NewMetricsForTesting()

	first := &countingGeocoder{result: tokyo}
	r1, err := NewRedis(first, client, time.Hour, metrics, discardLogger()).Geocode(context.Background(), "Tokyo")
	require.NoError(t, err)
	assert.Equal(t, tokyo, r1)

	// A later run with a fresh provider reads the shared entry.
	second := &countingGeocoder{}
	r2, err := NewRedis(second, client, time.Hour, metrics, discardLogger()).Geocode(context.Background(), "tokyo")
	require.NoError(t, err)

	assert.Equal(t, tokyo, r2)
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, second.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("redis", "hit")), 0)
}

func TestRedis_EntryExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	inner := &countingGeocoder{result: tokyo}
	cached := NewRedis(inner, client, time.Minute, observability.NewMetricsForTesting(), discardLogger())

	_, err := cached.Geocode(context.Background(), "Tokyo")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"tokyo"))

	mr.FastForward(2 * time.Minute)

	_, err = cached.Geocode(context.Background(), "Tokyo")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestRedis_DoesNotCacheNotFound(t *testing.T) {
	mr, client := newTestRedis(t)
	cached := NewRedis(&countingGeocoder{}, client, time.Hour, observability.NewMetricsForTesting(), discardLogger())

	_, err := cached.Geocode(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.False(t, mr.Exists(keyPrefix+"atlantis"))
}

func TestRedis_CorruptEntryFallsThrough(t *testing.T) {
	mr, client := newTestRedis(t)
	require.NoError(t, mr.Set(keyPrefix+"tokyo", "{not json"))

	inner := &countingGeocoder{result: tokyo}
	result, err := NewRedis(inner, client, time.Hour, observability.NewMetricsForTesting(), discardLogger()).
		Geocode(context.Background(), "Tokyo")
	require.NoError(t, err)
	assert.Equal(t, tokyo, result)
	assert.Equal(t, 1, inner.calls)
}

func TestRedis_UnavailableFallsThrough(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	inner := &countingGeocoder{result: tokyo}
	result, err := NewRedis(inner, client, time.Hour, observability.NewMetricsForTesting(), discardLogger()).
		Geocode(context.Background(), "Tokyo")
	require.NoError(t, err)
	assert.Equal(t, tokyo, result)
	assert.Equal(t, 1, inner.calls)
}

func TestRedis_InnerErrorPropagates(t *testing.T) {
	_, client := newTestRedis(t)
	boom := errors.New("provider down")
	_, err := NewRedis(&countingGeocoder{err: boom}, client, time.Hour, observability.NewMetricsForTesting(), discardLogger()).
		Geocode(context.Background(), "Tokyo")
	require.ErrorIs(t, err, boom)
}

func TestLayers_MemoryInFrontOfRedis(t *testing.T) {
	_, client := newTestRedis(t)
	metrics := observability.NewMetricsForTesting()
	provider := &countingGeocoder{result: tokyo}

	chain, err := NewLRU(NewRedis(provider, client, time.Hour, metrics, discardLogger()), 10, metrics)
	require.NoError(t, err)

	for range 3 {
		_, err := chain.Geocode(context.Background(), "Tokyo")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, provider.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("redis", "miss")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("memory", "hit")), 0)
}

func TestNewClientFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClientFromURL(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = NewClientFromURL(context.Background(), "not a url")
	require.Error(t, err)
}
