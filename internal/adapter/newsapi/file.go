package newsapi

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/pipeline"
)

// FileSource replays a saved NewsAPI response. Each query returns the saved
// articles whose title contains the keyword, ignoring case; the date window
// is not applied.
type FileSource struct {
	articles []domain.RawArticle
}

// NewFileSource loads and decodes the response stored at path.
func NewFileSource(path string, clock clockwork.Clock) (*FileSource, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	articles, err := Decode(f, clock.Now())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &FileSource{articles: articles}, nil
}

// Len is the number of saved articles.
func (s *FileSource) Len() int { return len(s.articles) }

// FetchArticles implements pipeline.ArticleSource.
func (s *FileSource) FetchArticles(ctx context.Context, q pipeline.Query) ([]domain.RawArticle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kw := strings.ToLower(q.Keyword)
	var out []domain.RawArticle
	for _, a := range s.articles {
		if kw == "" || strings.Contains(strings.ToLower(a.Title), kw) {
			out = append(out, a)
		}
	}
	return out, nil
}
