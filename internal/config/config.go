package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/geonews-etl/internal/domain"
)

// News source, geocoder and NER selectors.
const (
	SourceNewsAPI = "newsapi"
	SourceRSS     = "rss"

	ProviderNominatim = "nominatim"
	ProviderMapbox    = "mapbox"

	NERService = "service"
	NERProse   = "prose"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Scheduling. An empty Schedule means a single run.
	Schedule   string
	RunTimeout time.Duration

	// News source.
	NewsSource      string
	NewsAPIKey      string
	NewsAPIEndpoint string
	NewsLanguage    string
	RSSFeeds        []string
	FetchTimeout    time.Duration
	LookbackDays    int

	// Vocabulary and exclusions, in tie-break order.
	DisasterKeywords  []string
	ExcludedLocations []string
	ExcludedURLTerms  []string

	// Named-entity recognition. The service provider needs NERServiceURL;
	// prose is the lower-accuracy in-process fallback.
	NERProvider   string
	NERServiceURL string
	NERTimeout    time.Duration
	EnrichWorkers int

	// Geocoding.
	GeocoderProvider    string
	NominatimURL        string
	NominatimUserAgent  string
	MapboxToken         string
	GeocodeTimeout      time.Duration
	GeocodeMaxAttempts  int
	GeocodeBackoffStart time.Duration
	GeocodeBackoffMax   time.Duration
	GeocodeRateLimit    float64
	GeocodeCacheSize    int
	RedisURL            string
	GeocodeCacheTTL     time.Duration

	// Storage and publishing. Empty values disable the stage.
	DatabaseURL  string
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	rules := domain.DefaultFilterRules()
	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Schedule:   strings.TrimSpace(os.Getenv("SCHEDULE")),
		RunTimeout: p.duration("RUN_TIMEOUT", "30m"),

		NewsSource:      strings.ToLower(sharedcfg.EnvOrDefault("NEWS_SOURCE", SourceNewsAPI)),
		NewsAPIKey:      os.Getenv("NEWSAPI_KEY"),
		NewsAPIEndpoint: sharedcfg.EnvOrDefault("NEWSAPI_ENDPOINT", "https://newsapi.org/v2/everything"),
		NewsLanguage:    sharedcfg.EnvOrDefault("NEWS_LANGUAGE", "en"),
		RSSFeeds:        parseList(os.Getenv("RSS_FEEDS")),
		FetchTimeout:    p.duration("FETCH_TIMEOUT", "15s"),
		LookbackDays:    p.positiveInt("LOOKBACK_DAYS", 2),

		DisasterKeywords:  parseList(sharedcfg.EnvOrDefault("DISASTER_KEYWORDS", strings.Join(domain.DefaultKeywords, ","))),
		ExcludedLocations: parseList(sharedcfg.EnvOrDefault("EXCLUDED_LOCATIONS", strings.Join(rules.ExcludedLocations, ","))),
		ExcludedURLTerms:  parseList(sharedcfg.EnvOrDefault("EXCLUDED_URL_TERMS", strings.Join(rules.ExcludedURLTerms, ","))),

		NERProvider:   strings.ToLower(sharedcfg.EnvOrDefault("NER_PROVIDER", NERService)),
		NERServiceURL: strings.TrimRight(os.Getenv("NER_SERVICE_URL"), "/"),
		NERTimeout:    p.duration("NER_TIMEOUT", "5s"),
		EnrichWorkers: p.positiveInt("ENRICH_WORKERS", 4),

		GeocoderProvider:    strings.ToLower(sharedcfg.EnvOrDefault("GEOCODER_PROVIDER", ProviderNominatim)),
		NominatimURL:        strings.TrimRight(sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"), "/"),
		NominatimUserAgent:  sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "geonews-etl"),
		MapboxToken:         os.Getenv("MAPBOX_TOKEN"),
		GeocodeTimeout:      p.duration("GEOCODE_TIMEOUT", "10s"),
		GeocodeMaxAttempts:  p.positiveInt("GEOCODE_MAX_ATTEMPTS", 5),
		GeocodeBackoffStart: p.duration("GEOCODE_BACKOFF_INITIAL", "500ms"),
		GeocodeBackoffMax:   p.duration("GEOCODE_BACKOFF_MAX", "10s"),
		GeocodeRateLimit:    p.positiveFloat("GEOCODE_RATE_LIMIT", 1),
		GeocodeCacheSize:    p.positiveInt("GEOCODE_CACHE_SIZE", 1000),
		RedisURL:            os.Getenv("REDIS_URL"),
		GeocodeCacheTTL:     p.duration("GEOCODE_CACHE_TTL", "720h"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		KafkaBrokers: parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "disaster-events"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.NewsSource {
	case SourceNewsAPI:
	case SourceRSS:
		if len(c.RSSFeeds) == 0 {
			return errors.New("RSS_FEEDS is required when NEWS_SOURCE is rss")
		}
	default:
		return fmt.Errorf("invalid NEWS_SOURCE %q", c.NewsSource)
	}

	switch c.GeocoderProvider {
	case ProviderNominatim:
		if c.NominatimUserAgent == "" {
			return errors.New("NOMINATIM_USER_AGENT is required")
		}
	case ProviderMapbox:
		if c.MapboxToken == "" {
			return errors.New("GEOCODER_PROVIDER is mapbox but MAPBOX_TOKEN is not set")
		}
	default:
		return fmt.Errorf("invalid GEOCODER_PROVIDER %q", c.GeocoderProvider)
	}

	if len(c.DisasterKeywords) == 0 {
		return errors.New("DISASTER_KEYWORDS must list at least one keyword")
	}
	if c.GeocodeBackoffMax < c.GeocodeBackoffStart {
		return errors.New("GEOCODE_BACKOFF_MAX must not be less than GEOCODE_BACKOFF_INITIAL")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	switch c.NERProvider {
	case NERService:
		if c.NERServiceURL == "" {
			return errors.New("NER_SERVICE_URL is required when NER_PROVIDER is service")
		}
	case NERProse:
	default:
		return fmt.Errorf("invalid NER_PROVIDER %q", c.NERProvider)
	}
	return nil
}

// Lookback is the fetch window as a duration.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// parser accumulates the first parse error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) duration(key, def string) time.Duration {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		p.fail(fmt.Errorf("invalid %s %q: must be a positive duration", key, s))
		return 0
	}
	return d
}

func (p *parser) positiveInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		p.fail(fmt.Errorf("invalid %s %q: must be a positive integer", key, s))
		return 0
	}
	return n
}

func (p *parser) positiveFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		p.fail(fmt.Errorf("invalid %s %q: must be a positive number", key, s))
		return 0
	}
	return f
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

// parseBrokers returns nil when publishing is not configured.
func parseBrokers(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return sharedcfg.ParseBrokers(s)
}

// parseList splits a comma-separated value, trimming blanks.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
