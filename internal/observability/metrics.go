package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geonews_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the enrichment pipeline.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec // labels: outcome={success,skipped,error}
	ArticlesFetched  prometheus.Counter
	ArticlesDropped  *prometheus.CounterVec // labels: reason
	RecordsPersisted prometheus.Counter
	RecordsDuplicate prometheus.Counter
	PipelineRunning  prometheus.Gauge
	LastSuccess      prometheus.Gauge

	RunDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: provider, outcome={success,not_found,timeout,error}
	GeocodeOutcomes    *prometheus.CounterVec   // labels: status={resolved,not_found,failed,exhausted}
	GeocodeAttempts    prometheus.Histogram     // attempts per resolved location
	GeocodeCache       *prometheus.CounterVec   // labels: layer={memory,redis}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: provider
}

func newMetrics(help bool) *Metrics {
	h := func(s string) string {
		if help {
			return s
		}
		return ""
	}
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      h("Pipeline runs by outcome."),
		}, []string{"outcome"}),
		ArticlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_fetched_total",
			Help:      h("Total articles returned by the news source."),
		}),
		ArticlesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_dropped_total",
			Help:      h("Articles removed by the filter stage, by reason."),
		}, []string{"reason"}),
		RecordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_persisted_total",
			Help:      h("Records newly inserted into the store."),
		}),
		RecordsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_duplicate_total",
			Help:      h("Records skipped because their uniqueness key already existed."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      h("1 while a run is in progress, 0 otherwise."),
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      h("Unix time of the last run that completed without error."),
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      h("Duration of a complete fetch-enrich-persist run."),
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      h("Geocoding API requests by provider and outcome."),
		}, []string{"provider", "outcome"}),
		GeocodeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_outcomes_total",
			Help:      h("Terminal geocoding status per location."),
		}, []string{"status"}),
		GeocodeAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_attempts",
			Help:      h("Provider attempts needed per location."),
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 10},
		}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      h("Geocoding cache lookups by layer and result."),
		}, []string{"layer", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      h("Geocoding API request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.ArticlesFetched,
		m.ArticlesDropped,
		m.RecordsPersisted,
		m.RecordsDuplicate,
		m.PipelineRunning,
		m.LastSuccess,
		m.RunDuration,
		m.GeocodeRequests,
		m.GeocodeOutcomes,
		m.GeocodeAttempts,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
