package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/geonews-etl/internal/domain"
)

// Enricher classifies raw articles and resolves the place names in their
// titles. Articles labelled Unknown never reach the recognizer.
type Enricher struct {
	classifier *domain.Classifier
	recognizer domain.EntityRecognizer
	workers    int
	logger     *slog.Logger
}

// NewEnricher creates an Enricher that runs up to workers recognizer calls at
// once.
func NewEnricher(classifier *domain.Classifier, recognizer domain.EntityRecognizer, workers int, logger *slog.Logger) *Enricher {
	if workers < 1 {
		workers = 1
	}
	return &Enricher{
		classifier: classifier,
		recognizer: recognizer,
		workers:    workers,
		logger:     logger,
	}
}

// Enrich returns the classified and located articles in input order along
// with the rows it dropped. It only fails when ctx ends.
func (e *Enricher) Enrich(ctx context.Context, raws []domain.RawArticle) ([]domain.Article, domain.DropStats, error) {
	stats := domain.DropStats{}

	classified := make([]domain.ClassifiedArticle, 0, len(raws))
	for _, raw := range raws {
		c := e.classifier.ClassifyArticle(raw)
		if c.DisasterEvent == domain.Unknown {
			stats[domain.DropUnclassified]++
			continue
		}
		classified = append(classified, c)
	}

	articles := make([]domain.Article, len(classified))
	failed := make([]bool, len(classified))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, c := range classified {
		g.Go(func() error {
			candidates, err := domain.ExtractLocations(gctx, e.recognizer, c.Title)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.Warn("entity recognition failed, dropping article",
					"title", c.Title,
					"url", c.URL,
					"error", err,
				)
				failed[i] = true
				return nil
			}

			a := domain.NewArticle(c)
			a.Candidates = candidates
			a.Location, a.Located = domain.ResolveLocation(candidates)
			articles[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	out := articles[:0]
	for i, a := range articles {
		if failed[i] {
			stats[domain.DropNERError]++
			continue
		}
		out = append(out, a)
	}
	return out, stats, nil
}
