package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/observability"
)

// ErrRunInProgress is returned by Run while another run holds the pipeline.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Query is one news search request.
type Query struct {
	Keyword  string
	From     time.Time
	To       time.Time
	Language string
}

// ArticleSource fetches raw articles matching a query.
type ArticleSource interface {
	FetchArticles(ctx context.Context, q Query) ([]domain.RawArticle, error)
}

// Store persists records idempotently and returns the ones actually inserted.
type Store interface {
	Persist(ctx context.Context, records []domain.PersistedRecord) ([]domain.PersistedRecord, error)
}

// Publisher announces newly inserted records downstream.
type Publisher interface {
	Publish(ctx context.Context, records []domain.PersistedRecord) error
}

// Options holds the per-run settings.
type Options struct {
	Keywords   []string
	Lookback   time.Duration
	Language   string
	RunTimeout time.Duration
}

// Deps are the collaborators a Pipeline drives. Store and Publisher may be
// nil, which skips the write and the publish stage respectively.
type Deps struct {
	Source    ArticleSource
	Enricher  *Enricher
	Geo       *domain.GeoResolver
	Filter    *domain.Filter
	Store     Store
	Publisher Publisher
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Result summarises one run.
type Result struct {
	Fetched int
	// Records are the surviving records, whether or not they were written.
	Records []domain.PersistedRecord
	Written int
	Dropped domain.DropStats
	// Skipped is set when a missing credential stopped the run before fetching.
	Skipped bool
}

// Pipeline runs fetch, enrich, geocode, filter, and persist over one batch.
type Pipeline struct {
	deps  Deps
	opts  Options
	mu    sync.Mutex
	ready atomic.Bool
}

// New creates a Pipeline. A nil clock defaults to the real clock.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	return &Pipeline{deps: deps, opts: opts}
}

// CheckReadiness returns nil once a run has completed, or an error describing
// why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Run executes one batch. Runs never overlap: a call made while another run
// is active returns ErrRunInProgress immediately. A storage failure is
// returned alongside a Result that still carries the computed records.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	if !p.mu.TryLock() {
		return Result{}, ErrRunInProgress
	}
	defer p.mu.Unlock()

	if p.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RunTimeout)
		defer cancel()
	}

	m := p.deps.Metrics
	m.PipelineRunning.Set(1)
	defer m.PipelineRunning.Set(0)

	start := p.deps.Clock.Now()
	res, err := p.run(ctx)
	m.RunDuration.Observe(p.deps.Clock.Since(start).Seconds())

	for reason, n := range res.Dropped {
		m.ArticlesDropped.WithLabelValues(string(reason)).Add(float64(n))
	}

	switch {
	case err != nil:
		m.RunsTotal.WithLabelValues("error").Inc()
		p.deps.Logger.Error("pipeline run failed", "error", err, "fetched", res.Fetched, "records", len(res.Records))
	case res.Skipped:
		m.RunsTotal.WithLabelValues("skipped").Inc()
		p.ready.Store(true)
	default:
		m.RunsTotal.WithLabelValues("success").Inc()
		m.LastSuccess.Set(float64(p.deps.Clock.Now().Unix()))
		p.ready.Store(true)
		p.deps.Logger.Info("pipeline run finished",
			"fetched", res.Fetched,
			"records", len(res.Records),
			"written", res.Written,
			"dropped", res.Dropped.Total(),
		)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context) (Result, error) {
	res := Result{Dropped: domain.DropStats{}}

	raws, err := p.fetch(ctx)
	if errors.Is(err, domain.ErrMissingCredential) {
		p.deps.Logger.Warn("news source credential missing, skipping run", "error", err)
		res.Skipped = true
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Fetched = len(raws)
	p.deps.Metrics.ArticlesFetched.Add(float64(len(raws)))
	if len(raws) == 0 {
		p.deps.Logger.Info("no articles fetched")
		return res, nil
	}

	articles, dropped, err := p.deps.Enricher.Enrich(ctx, raws)
	res.Dropped.Merge(dropped)
	if err != nil {
		return res, fmt.Errorf("enrich articles: %w", err)
	}

	articles, dropped = p.deps.Filter.Prefilter(articles)
	res.Dropped.Merge(dropped)

	if err := p.geocode(ctx, articles); err != nil {
		return res, err
	}

	articles, dropped = p.deps.Filter.Apply(articles)
	res.Dropped.Merge(dropped)

	processedAt := p.deps.Clock.Now()
	records := make([]domain.PersistedRecord, 0, len(articles))
	for _, a := range articles {
		records = append(records, domain.NewPersistedRecord(a, processedAt))
	}
	records, collapsed := domain.DedupByKey(records)
	if collapsed > 0 {
		res.Dropped[domain.DropDuplicateKey] += collapsed
	}
	res.Records = records

	return p.persist(ctx, res)
}

// fetch queries the source once per keyword. A failed keyword is logged and
// skipped; a missing credential aborts the whole fetch.
func (p *Pipeline) fetch(ctx context.Context) ([]domain.RawArticle, error) {
	now := p.deps.Clock.Now()
	q := Query{From: now.Add(-p.opts.Lookback), To: now, Language: p.opts.Language}

	var all []domain.RawArticle
	for _, kw := range p.opts.Keywords {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.Keyword = kw
		batch, err := p.deps.Source.FetchArticles(ctx, q)
		if errors.Is(err, domain.ErrMissingCredential) {
			return nil, err
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.deps.Logger.Warn("fetch failed, skipping keyword", "keyword", kw, "error", err)
			continue
		}
		p.deps.Logger.Debug("fetched articles", "keyword", kw, "count", len(batch))
		all = append(all, batch...)
	}
	return all, nil
}

// geocode resolves each article in order. Outcomes are memoised per
// canonical location for the run, so a location is never retried twice.
func (p *Pipeline) geocode(ctx context.Context, articles []domain.Article) error {
	seen := make(map[string]domain.GeoOutcome)
	for i := range articles {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("geocode articles: %w", err)
		}
		a := &articles[i]
		key := strings.ToLower(strings.TrimSpace(a.Location.Canonical))
		out, ok := seen[key]
		if !ok {
			out = p.deps.Geo.Resolve(ctx, a.Location.Canonical)
			seen[key] = out
			p.deps.Metrics.GeocodeOutcomes.WithLabelValues(string(out.Status)).Inc()
			p.deps.Metrics.GeocodeAttempts.Observe(float64(out.Attempts))
		}
		a.Geo = out.Point
		a.GeoStatus = out.Status
	}
	return nil
}

func (p *Pipeline) persist(ctx context.Context, res Result) (Result, error) {
	if p.deps.Store == nil {
		p.deps.Logger.Info("no store configured, skipping write", "records", len(res.Records))
		return res, nil
	}
	if len(res.Records) == 0 {
		return res, nil
	}

	inserted, err := p.deps.Store.Persist(ctx, res.Records)
	if err != nil {
		return res, fmt.Errorf("persist records: %w", err)
	}
	res.Written = len(inserted)
	p.deps.Metrics.RecordsPersisted.Add(float64(len(inserted)))
	p.deps.Metrics.RecordsDuplicate.Add(float64(len(res.Records) - len(inserted)))

	if p.deps.Publisher != nil && len(inserted) > 0 {
		if err := p.deps.Publisher.Publish(ctx, inserted); err != nil {
			p.deps.Logger.Warn("publish failed", "error", err, "records", len(inserted))
		}
	}
	return res, nil
}
