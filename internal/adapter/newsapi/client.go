package newsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/pipeline"
)

// DefaultEndpoint is the NewsAPI full-text search endpoint.
const DefaultEndpoint = "https://newsapi.org/v2/everything"

const dateLayout = "2006-01-02"

// Client implements pipeline.ArticleSource using the NewsAPI "everything"
// endpoint.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates a NewsAPI client. An empty endpoint selects
// DefaultEndpoint; a nil clock selects the real clock.
func NewClient(apiKey, endpoint string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		clock:  clock,
		logger: logger,
	}
}

// FetchArticles searches for q.Keyword between q.From and q.To. It returns
// domain.ErrMissingCredential without any request when no API key is set.
func (c *Client) FetchArticles(ctx context.Context, q pipeline.Query) ([]domain.RawArticle, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("NEWSAPI_KEY: %w", domain.ErrMissingCredential)
	}

	params := url.Values{
		"apiKey": {c.apiKey},
		"q":      {q.Keyword},
		"from":   {q.From.Format(dateLayout)},
		"to":     {q.To.Format(dateLayout)},
	}
	if q.Language != "" {
		params.Set("language", q.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	articles, err := Decode(resp.Body, c.clock.Now())
	if err != nil {
		return nil, err
	}
	c.logger.Debug("newsapi search", "keyword", q.Keyword, "articles", len(articles))
	return articles, nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var apiErr response
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
		if apiErr.Code == "apiKeyMissing" || apiErr.Code == "apiKeyInvalid" {
			return fmt.Errorf("newsapi %s: %w", apiErr.Code, domain.ErrMissingCredential)
		}
		return fmt.Errorf("newsapi error: status %d: %s: %s", resp.StatusCode, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("newsapi error: status %d: %s", resp.StatusCode, body)
}

// Decode parses a NewsAPI response body. Articles without a publication time
// are stamped with now; a source object collapses to its name.
func Decode(r io.Reader, now time.Time) ([]domain.RawArticle, error) {
	var body response
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if body.Status == "error" {
		return nil, fmt.Errorf("newsapi error: %s: %s", body.Code, body.Message)
	}

	out := make([]domain.RawArticle, 0, len(body.Articles))
	for _, a := range body.Articles {
		raw := domain.RawArticle{
			Title:       a.Title,
			Source:      string(a.Source),
			URL:         a.URL,
			PublishedAt: now.UTC(),
		}
		if a.PublishedAt != nil {
			raw.PublishedAt = a.PublishedAt.UTC()
		}
		out = append(out, raw)
	}
	return out, nil
}

// NewsAPI response types.

type response struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Articles []article `json:"articles"`
}

type article struct {
	Source      sourceName `json:"source"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"publishedAt"`
}

// sourceName accepts either {"id": ..., "name": ...} or a bare string.
type sourceName string

func (s *sourceName) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*s = sourceName(name)
		return nil
	}
	var obj struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return errors.New("source: expected object or string")
	}
	*s = sourceName(obj.Name)
	return nil
}
