package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/observability"
)

const (
	provider       = "mapbox"
	defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"
)

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client allowing at most rps requests
// per second.
func NewClient(token string, timeout time.Duration, rps float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		metrics: metrics,
		logger:  logger,
	}
}

// Geocode forward-geocodes a free-text place name. A timed-out request
// returns an error wrapping domain.ErrGeocodeTimeout; no match returns an
// empty result.
func (c *Client) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"country,region,district,place,locality"},
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.GeocodingResult{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	result, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.metrics.GeocodeAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	c.metrics.GeocodeRequests.WithLabelValues(provider, outcome(result, err)).Inc()
	if err != nil {
		c.logger.Debug("mapbox geocode failed", "query", query, "error", err)
	}
	return result, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return domain.GeocodingResult{}, fmt.Errorf("mapbox request: %w: %w", domain.ErrGeocodeTimeout, err)
		}
		return domain.GeocodingResult{}, fmt.Errorf("mapbox request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGatewayTimeout {
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API: status %d: %w", resp.StatusCode, domain.ErrGeocodeTimeout)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		return domain.GeocodingResult{}, nil
	}

	f := mapboxResp.Features[0]
	if len(f.Center) != 2 {
		return domain.GeocodingResult{}, nil
	}
	return domain.GeocodingResult{
		Lon:              f.Center[0],
		Lat:              f.Center[1],
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

func outcome(result domain.GeocodingResult, err error) string {
	switch {
	case errors.Is(err, domain.ErrGeocodeTimeout):
		return "timeout"
	case err != nil:
		return "error"
	case !result.Found():
		return "not_found"
	default:
		return "success"
	}
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
