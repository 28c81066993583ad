package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mmcdole/gofeed"

	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/pipeline"
)

// Source implements pipeline.ArticleSource over a fixed list of RSS or Atom
// feeds. Feeds are downloaded once per query window and filtered per keyword.
type Source struct {
	feeds  []string
	parser *gofeed.Parser
	clock  clockwork.Clock
	logger *slog.Logger

	mu       sync.Mutex
	window   [2]time.Time
	articles []domain.RawArticle
}

// NewSource creates a feed source. A nil clock selects the real clock.
func NewSource(feeds []string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Source {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "geonews-etl"
	return &Source{
		feeds:  feeds,
		parser: parser,
		clock:  clock,
		logger: logger,
	}
}

// FetchArticles returns items published inside [q.From, q.To] whose title
// contains q.Keyword, ignoring case.
func (s *Source) FetchArticles(ctx context.Context, q pipeline.Query) ([]domain.RawArticle, error) {
	all, err := s.load(ctx, q.From, q.To)
	if err != nil {
		return nil, err
	}

	kw := strings.ToLower(q.Keyword)
	var out []domain.RawArticle
	for _, a := range all {
		if strings.Contains(strings.ToLower(a.Title), kw) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Source) load(ctx context.Context, from, to time.Time) ([]domain.RawArticle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.feeds) == 0 {
		return nil, errors.New("no feeds configured")
	}

	window := [2]time.Time{from, to}
	if s.articles != nil && s.window == window {
		return s.articles, nil
	}

	var (
		articles = []domain.RawArticle{}
		failures int
		lastErr  error
	)
	for _, feedURL := range s.feeds {
		feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			lastErr = err
			s.logger.Warn("feed fetch failed", "feed", feedURL, "error", err)
			continue
		}
		articles = append(articles, s.items(feed, from, to)...)
	}
	if failures == len(s.feeds) {
		return nil, fmt.Errorf("all %d feeds failed: %w", failures, lastErr)
	}

	s.window = window
	s.articles = articles
	return articles, nil
}

// items converts feed entries inside the window. Entries without a date are
// stamped with the current time, capped at the window end.
func (s *Source) items(feed *gofeed.Feed, from, to time.Time) []domain.RawArticle {
	out := make([]domain.RawArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		var published time.Time
		switch {
		case item.PublishedParsed != nil:
			published = item.PublishedParsed.UTC()
		case item.UpdatedParsed != nil:
			published = item.UpdatedParsed.UTC()
		default:
			published = s.clock.Now().UTC()
			if published.After(to) {
				published = to.UTC()
			}
		}
		if published.Before(from) || published.After(to) {
			continue
		}
		out = append(out, domain.RawArticle{
			Title:       strings.TrimSpace(item.Title),
			Source:      strings.TrimSpace(feed.Title),
			URL:         item.Link,
			PublishedAt: published,
		})
	}
	return out
}
