package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geonews-etl/internal/adapter/geocache"
	httpadapter "github.com/couchcryptid/geonews-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/geonews-etl/internal/adapter/kafka"
	"github.com/couchcryptid/geonews-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/geonews-etl/internal/adapter/ner"
	"github.com/couchcryptid/geonews-etl/internal/adapter/newsapi"
	"github.com/couchcryptid/geonews-etl/internal/adapter/nominatim"
	"github.com/couchcryptid/geonews-etl/internal/adapter/postgres"
	"github.com/couchcryptid/geonews-etl/internal/adapter/rss"
	"github.com/couchcryptid/geonews-etl/internal/config"
	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/observability"
	"github.com/couchcryptid/geonews-etl/internal/pipeline"
	"github.com/couchcryptid/geonews-etl/internal/scheduler"
)

func main() {
	once := flag.Bool("once", false, "run the pipeline a single time and exit")
	flag.Parse()
	os.Exit(run(*once))
}

func run(once bool) int {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := build(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		return 1
	}
	defer svc.close()

	if once || cfg.Schedule == "" {
		return runOnce(ctx, svc.pipeline, logger)
	}
	return serve(ctx, cfg, svc, logger)
}

// runOnce returns the process exit code for a single run.
func runOnce(ctx context.Context, p *pipeline.Pipeline, logger *slog.Logger) int {
	res, err := p.Run(ctx)
	if err != nil {
		logger.Error("pipeline run failed", "error", err)
		return 1
	}
	if res.Skipped {
		logger.Warn("pipeline run skipped")
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, svc *service, logger *slog.Logger) int {
	sched := scheduler.New(svc.pipeline, logger)
	if err := sched.Start(cfg.Schedule); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return 1
	}

	var events httpadapter.EventQuerier
	if svc.store != nil {
		events = svc.store
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, svc.pipeline, events, sched, nil, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Run immediately rather than waiting for the first tick.
	if err := sched.Trigger(); err != nil {
		logger.Warn("initial run not started", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}

	logger.Info("shutdown complete")
	return 0
}

// service holds the wired pipeline and the resources to release on exit.
type service struct {
	pipeline *pipeline.Pipeline
	store    *postgres.Store
	closers  []func() error
}

func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*service, error) {
	svc := &service{}
	clock := clockwork.NewRealClock()

	classifier, err := domain.NewClassifier(cfg.DisasterKeywords)
	if err != nil {
		return nil, err
	}

	source, err := newSource(cfg, clock, logger)
	if err != nil {
		return nil, err
	}

	recognizer, err := ner.NewRecognizer(cfg.NERProvider, cfg.NERServiceURL, cfg.NERTimeout, logger)
	if err != nil {
		return nil, err
	}

	geocoder, err := newGeocoder(ctx, cfg, svc, metrics, logger)
	if err != nil {
		svc.close()
		return nil, err
	}

	deps := pipeline.Deps{
		Source:   source,
		Enricher: pipeline.NewEnricher(classifier, recognizer, cfg.EnrichWorkers, logger),
		Geo:      domain.NewGeoResolver(geocoder, retryPolicy(cfg), logger),
		Filter: domain.NewFilter(domain.FilterRules{
			ExcludedLocations: cfg.ExcludedLocations,
			ExcludedURLTerms:  cfg.ExcludedURLTerms,
		}),
		Clock:   clock,
		Logger:  logger,
		Metrics: metrics,
	}

	if cfg.DatabaseURL != "" {
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			svc.close()
			return nil, err
		}
		svc.closers = append(svc.closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			svc.close()
			return nil, err
		}
		svc.store = store
		deps.Store = store
	} else {
		logger.Warn("DATABASE_URL not set, records will not be persisted")
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		svc.closers = append(svc.closers, pub.Close)
		deps.Publisher = pub
	}

	svc.pipeline = pipeline.New(deps, pipeline.Options{
		Keywords:   classifier.Keywords(),
		Lookback:   cfg.Lookback(),
		Language:   cfg.NewsLanguage,
		RunTimeout: cfg.RunTimeout,
	})
	return svc, nil
}

func newSource(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (pipeline.ArticleSource, error) {
	switch cfg.NewsSource {
	case config.SourceNewsAPI:
		return newsapi.NewClient(cfg.NewsAPIKey, cfg.NewsAPIEndpoint, cfg.FetchTimeout, clock, logger), nil
	case config.SourceRSS:
		return rss.NewSource(cfg.RSSFeeds, cfg.FetchTimeout, clock, logger), nil
	default:
		return nil, fmt.Errorf("unsupported news source %q", cfg.NewsSource)
	}
}

// newGeocoder builds provider -> Redis -> in-memory LRU, outermost last.
func newGeocoder(ctx context.Context, cfg *config.Config, svc *service, metrics *observability.Metrics, logger *slog.Logger) (domain.Geocoder, error) {
	var geocoder domain.Geocoder
	switch cfg.GeocoderProvider {
	case config.ProviderMapbox:
		geocoder = mapbox.NewClient(cfg.MapboxToken, cfg.GeocodeTimeout, cfg.GeocodeRateLimit, metrics, logger)
	case config.ProviderNominatim:
		geocoder = nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.GeocodeTimeout, cfg.GeocodeRateLimit, metrics, logger)
	default:
		return nil, fmt.Errorf("unsupported geocoder provider %q", cfg.GeocoderProvider)
	}
	logger.Info("geocoder configured", "provider", cfg.GeocoderProvider, "rate_limit", cfg.GeocodeRateLimit)

	if cfg.RedisURL != "" {
		client, err := geocache.NewClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, client.Close)
		geocoder = geocache.NewRedis(geocoder, client, cfg.GeocodeCacheTTL, metrics, logger)
		logger.Info("redis geocode cache enabled", "ttl", cfg.GeocodeCacheTTL)
	}

	cached, err := geocache.NewLRU(geocoder, cfg.GeocodeCacheSize, metrics)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func retryPolicy(cfg *config.Config) domain.RetryPolicy {
	p := domain.DefaultRetryPolicy()
	p.MaxAttempts = cfg.GeocodeMaxAttempts
	p.InitialInterval = cfg.GeocodeBackoffStart
	p.MaxInterval = cfg.GeocodeBackoffMax
	return p
}
