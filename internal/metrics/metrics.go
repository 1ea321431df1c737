// Package metrics provides Prometheus instrumentation for the download service
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "ytwd"

// Result labels
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultInfected = "infected"
)

// Collector collects and exposes service metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	logger   zerolog.Logger
	registry *prometheus.Registry

	// Session metrics
	sessionsCreated prometheus.Counter
	sessionsLive    prometheus.Gauge

	// Pipeline metrics
	inspections       *prometheus.CounterVec
	downloads         *prometheus.CounterVec
	downloadsInFlight prometheus.Gauge
	downloadDuration  *prometheus.HistogramVec
	downloadedBytes   prometheus.Counter
	scans             *prometheus.CounterVec

	// Janitor metrics
	cleanupRemoved *prometheus.CounterVec

	// HTTP metrics
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	rateLimitDenied *prometheus.CounterVec
}

// NewCollector creates a collector backed by its own registry
func NewCollector(logger zerolog.Logger, namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	mc := &Collector{
		logger:   logger.With().Str("component", "metrics_collector").Logger(),
		registry: prometheus.NewRegistry(),
	}

	mc.initSessionMetrics(namespace)
	mc.initPipelineMetrics(namespace)
	mc.initHTTPMetrics(namespace)
	mc.registerMetrics()

	mc.logger.Debug().Str("namespace", namespace).Msg("Metrics collector initialized")

	return mc
}

func (mc *Collector) initSessionMetrics(namespace string) {
	mc.sessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Total number of sessions created by inspection",
	})

	mc.sessionsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_live",
		Help:      "Number of sessions currently held in the store",
	})

	mc.cleanupRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_removed_total",
			Help:      "Total number of sessions and directories removed by the janitor",
		},
		[]string{"kind"},
	)
}

func (mc *Collector) initPipelineMetrics(namespace string) {
	mc.inspections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inspections_total",
			Help:      "Total number of URL inspections",
		},
		[]string{"result"},
	)

	mc.downloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Total number of finished download jobs",
		},
		[]string{"result"},
	)

	mc.downloadsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "downloads_in_flight",
		Help:      "Number of download jobs currently running",
	})

	mc.downloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Duration of download jobs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"result"},
	)

	mc.downloadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downloaded_bytes_total",
		Help:      "Total size of artifacts produced by completed jobs",
	})

	mc.scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of artifact malware scans",
		},
		[]string{"result"},
	)
}

func (mc *Collector) initHTTPMetrics(namespace string) {
	mc.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "code"},
	)

	mc.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	mc.rateLimitDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
}

// registerMetrics registers all metrics with the registry
func (mc *Collector) registerMetrics() {
	metrics := []prometheus.Collector{
		mc.sessionsCreated,
		mc.sessionsLive,
		mc.cleanupRemoved,

		mc.inspections,
		mc.downloads,
		mc.downloadsInFlight,
		mc.downloadDuration,
		mc.downloadedBytes,
		mc.scans,

		mc.httpRequests,
		mc.httpDuration,
		mc.rateLimitDenied,
	}

	for _, metric := range metrics {
		mc.registry.MustRegister(metric)
	}
}

// GetHandler returns an HTTP handler for the /metrics endpoint
func (mc *Collector) GetHandler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordSessionCreated counts a new session
func (mc *Collector) RecordSessionCreated() {
	if mc == nil {
		return
	}
	mc.sessionsCreated.Inc()
}

// SetLiveSessions records the current store size
func (mc *Collector) SetLiveSessions(n int) {
	if mc == nil {
		return
	}
	mc.sessionsLive.Set(float64(n))
}

// RecordInspection counts an inspection outcome
func (mc *Collector) RecordInspection(result string) {
	if mc == nil {
		return
	}
	mc.inspections.WithLabelValues(result).Inc()
}

// DownloadStarted marks a job as running
func (mc *Collector) DownloadStarted() {
	if mc == nil {
		return
	}
	mc.downloadsInFlight.Inc()
}

// DownloadFinished records the outcome of a job
func (mc *Collector) DownloadFinished(result string, duration time.Duration, size int64) {
	if mc == nil {
		return
	}
	mc.downloadsInFlight.Dec()
	mc.downloads.WithLabelValues(result).Inc()
	mc.downloadDuration.WithLabelValues(result).Observe(duration.Seconds())
	if size > 0 {
		mc.downloadedBytes.Add(float64(size))
	}
}

// RecordScan counts a malware scan outcome
func (mc *Collector) RecordScan(result string) {
	if mc == nil {
		return
	}
	mc.scans.WithLabelValues(result).Inc()
}

// RecordCleanup counts sessions or directories removed by the janitor
func (mc *Collector) RecordCleanup(kind string, n int) {
	if mc == nil || n <= 0 {
		return
	}
	mc.cleanupRemoved.WithLabelValues(kind).Add(float64(n))
}

// RecordHTTPRequest records one served request
func (mc *Collector) RecordHTTPRequest(route string, code int, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.httpRequests.WithLabelValues(route, statusClass(code)).Inc()
	mc.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordRateLimited counts a rejected request
func (mc *Collector) RecordRateLimited(route string) {
	if mc == nil {
		return
	}
	mc.rateLimitDenied.WithLabelValues(route).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
