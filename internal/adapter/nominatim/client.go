package nominatim

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
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/observability"
)

const provider = "nominatim"

// DefaultBaseURL is the public OpenStreetMap Nominatim instance. Its usage
// policy allows one request per second and requires an identifying
// User-Agent.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client implements domain.Geocoder using the Nominatim search API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Nominatim client allowing at most rps requests per
// second.
func NewClient(baseURL, userAgent string, timeout time.Duration, rps float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		metrics: metrics,
		logger:  logger,
	}
}

// Geocode looks up a free-text place name. A timed-out request returns an
// error wrapping domain.ErrGeocodeTimeout; no match returns an empty result.
func (c *Client) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	result, err := c.search(ctx, c.baseURL+"/search?"+params.Encode())
	c.metrics.GeocodeAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	c.metrics.GeocodeRequests.WithLabelValues(provider, outcome(result, err)).Inc()
	if err != nil {
		c.logger.Debug("nominatim geocode failed", "query", query, "error", err)
	}
	return result, err
}

func (c *Client) search(ctx context.Context, fullURL string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return domain.GeocodingResult{}, fmt.Errorf("nominatim request: %w: %w", domain.ErrGeocodeTimeout, err)
		}
		return domain.GeocodingResult{}, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGatewayTimeout {
		return domain.GeocodingResult{}, fmt.Errorf("nominatim: status %d: %w", resp.StatusCode, domain.ErrGeocodeTimeout)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodingResult{}, fmt.Errorf("nominatim error: status %d: %s", resp.StatusCode, body)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(places) == 0 {
		return domain.GeocodingResult{}, nil
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lat %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lon %q: %w", p.Lon, err)
	}
	return domain.GeocodingResult{
		Lat:              lat,
		Lon:              lon,
		FormattedAddress: p.DisplayName,
		PlaceName:        p.Name,
		Confidence:       p.Importance,
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

// Nominatim jsonv2 response types. Coordinates arrive as strings.

type place struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Name        string  `json:"name"`
	Importance  float64 `json:"importance"`
}
