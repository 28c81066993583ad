// Command replay runs a saved NewsAPI response through classification, NER,
// location resolution, and filtering, and prints the survivors as JSON lines.
// Nothing is persisted or published.
//
// Usage:
//
//	go run ./cmd/replay -input internal/pipeline/testdata/newsapi_sample.json
//	go run ./cmd/replay -input saved.json -geocode -now 2025-06-15T06:00:00Z -out records.jsonl
//
// Logs go to stdout as well, so use -out to keep the records separate.
//
// Without -geocode only the pre-geocoding stages run and each line carries the
// resolved location hierarchy. With -geocode the full pipeline runs against
// the geocoder selected by GEOCODER_PROVIDER and each line is a final record.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geonews-etl/internal/adapter/geocache"
	"github.com/couchcryptid/geonews-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/geonews-etl/internal/adapter/ner"
	"github.com/couchcryptid/geonews-etl/internal/adapter/newsapi"
	"github.com/couchcryptid/geonews-etl/internal/adapter/nominatim"
	"github.com/couchcryptid/geonews-etl/internal/config"
	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/observability"
	"github.com/couchcryptid/geonews-etl/internal/pipeline"
)

// located is one output line when geocoding is skipped.
type located struct {
	Title         string       `json:"title"`
	URL           string       `json:"url"`
	PublishedAt   time.Time    `json:"timestamp"`
	DisasterEvent domain.Label `json:"disaster_event"`
	Candidates    []string     `json:"candidates"`
	Country       string       `json:"country"`
	Region        string       `json:"region"`
	City          string       `json:"city"`
	Location      string       `json:"location"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func run() error {
	input := flag.String("input", "", "path to a saved NewsAPI /v2/everything response")
	geocode := flag.Bool("geocode", false, "geocode locations and print final records")
	nowFlag := flag.String("now", "", "reference time (RFC 3339) for undated articles and processed_at")
	outPath := flag.String("out", "-", "output file for JSON lines, - for stdout")
	flag.Parse()

	if *input == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -input")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("cmd", "replay")

	clock := clockwork.NewRealClock()
	if *nowFlag != "" {
		now, err := time.Parse(time.RFC3339, *nowFlag)
		if err != nil {
			return fmt.Errorf("parse -now: %w", err)
		}
		clock = clockwork.NewFakeClockAt(now)
	}

	src, err := newsapi.NewFileSource(*input, clock)
	if err != nil {
		return err
	}
	classifier, err := domain.NewClassifier(cfg.DisasterKeywords)
	if err != nil {
		return err
	}
	recognizer, err := ner.NewRecognizer(cfg.NERProvider, cfg.NERServiceURL, cfg.NERTimeout, logger)
	if err != nil {
		return err
	}
	enricher := pipeline.NewEnricher(classifier, recognizer, cfg.EnrichWorkers, logger)
	filter := domain.NewFilter(domain.FilterRules{
		ExcludedLocations: cfg.ExcludedLocations,
		ExcludedURLTerms:  cfg.ExcludedURLTerms,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := os.Stdout
	if *outPath != "-" {
		f, err := os.Create(*outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	if !*geocode {
		return replayLocations(ctx, src, enricher, filter, enc, logger)
	}

	metrics := observability.NewMetricsForTesting()
	geocoder, err := newGeocoder(cfg, metrics, logger)
	if err != nil {
		return err
	}
	p := pipeline.New(pipeline.Deps{
		Source:   src,
		Enricher: enricher,
		Geo:      domain.NewGeoResolver(geocoder, retryPolicy(cfg), logger),
		Filter:   filter,
		Clock:    clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  metrics,
	}, pipeline.Options{Keywords: classifier.Keywords(), RunTimeout: cfg.RunTimeout})

	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	for _, r := range res.Records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	logger.Info("replay complete",
		"fetched", res.Fetched, "records", len(res.Records), "dropped", res.Dropped.Total())
	return nil
}

func replayLocations(ctx context.Context, src *newsapi.FileSource, enricher *pipeline.Enricher, filter *domain.Filter, enc *json.Encoder, logger *slog.Logger) error {
	raws, err := src.FetchArticles(ctx, pipeline.Query{})
	if err != nil {
		return err
	}
	articles, dropped, err := enricher.Enrich(ctx, raws)
	if err != nil {
		return err
	}
	articles, more := filter.Prefilter(articles)
	dropped.Merge(more)

	for _, a := range articles {
		if err := enc.Encode(located{
			Title:         a.Title,
			URL:           a.URL,
			PublishedAt:   a.PublishedAt,
			DisasterEvent: a.DisasterEvent,
			Candidates:    a.Candidates,
			Country:       a.Location.Country,
			Region:        a.Location.Region,
			City:          a.Location.City,
			Location:      a.Location.Canonical,
		}); err != nil {
			return err
		}
	}
	logger.Info("replay complete", "fetched", len(raws), "located", len(articles), "dropped", dropped.Total())
	return nil
}

func newGeocoder(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (domain.Geocoder, error) {
	var inner domain.Geocoder
	switch cfg.GeocoderProvider {
	case config.ProviderMapbox:
		inner = mapbox.NewClient(cfg.MapboxToken, cfg.GeocodeTimeout, cfg.GeocodeRateLimit, metrics, logger)
	default:
		inner = nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.GeocodeTimeout, cfg.GeocodeRateLimit, metrics, logger)
	}
	cached, err := geocache.NewLRU(inner, cfg.GeocodeCacheSize, metrics)
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
