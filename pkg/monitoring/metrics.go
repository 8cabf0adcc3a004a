package monitoring

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NERVsystems/osmxml/pkg/osm"
)

const (
	// Service name for metrics
	ServiceName = "osmxml"
)

var (
	// Parse metrics
	DocumentsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmxml_documents_parsed_total",
			Help: "Total number of OSM documents parsed",
		},
		[]string{"status"},
	)

	ParseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "osmxml_parse_duration_seconds",
			Help:    "Document parse duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0},
		},
	)

	ElementsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmxml_elements_parsed_total",
			Help: "Total number of elements stored in parsed maps",
		},
		[]string{"element"},
	)

	ElementsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmxml_elements_skipped_total",
			Help: "Total number of malformed elements discarded while parsing",
		},
		[]string{"element", "reason"},
	)

	// MCP request metrics
	MCPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmxml_mcp_requests_total",
			Help: "Total number of MCP requests processed",
		},
		[]string{"tool", "status"},
	)

	MCPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmxml_mcp_request_duration_seconds",
			Help:    "MCP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"tool"},
	)

	// Source metrics
	SourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmxml_source_requests_total",
			Help: "Total number of documents opened or fetched",
		},
		[]string{"source", "status"},
	)

	SourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmxml_source_request_duration_seconds",
			Help:    "Time to open or fetch and parse a document",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"source"},
	)

	// Rate limiting metrics
	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmxml_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for rate limits",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"source"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmxml_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmxml_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmxml_cache_size",
			Help: "Current number of items in cache",
		},
		[]string{"cache_type"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmxml_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmxml_system_info",
			Help: "System information",
		},
		[]string{"version", "go_version", "build_commit", "build_date"},
	)

	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osmxml_goroutines",
			Help: "Number of goroutines",
		},
	)

	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osmxml_memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)
)

// ParseHooks returns hooks that feed parse events into the metrics above.
// Install them with osm.SetMonitoringHooks.
func ParseHooks() *osm.MonitoringHooks {
	return &osm.MonitoringHooks{
		OnElement: func(t osm.ElementType) {
			ElementsParsed.WithLabelValues(t.String()).Inc()
		},
		OnSkipped: func(t osm.ElementType, reason error) {
			ElementsSkipped.WithLabelValues(t.String(), osm.ReasonLabel(reason)).Inc()
		},
		OnComplete: func(_ osm.Stats, d time.Duration) {
			DocumentsParsed.WithLabelValues("success").Inc()
			ParseDuration.Observe(d.Seconds())
		},
		OnError: func(err error) {
			DocumentsParsed.WithLabelValues("error").Inc()
			RecordError("parser", parseErrorType(err))
		},
	}
}

func parseErrorType(err error) string {
	var te *osm.TokenizerError
	if errors.As(err, &te) {
		return "tokenizer"
	}
	return osm.ReasonLabel(err)
}

// Helper functions for common metric updates
func RecordMCPRequest(tool string, duration time.Duration, success bool) {
	MCPRequestsTotal.WithLabelValues(tool, status(success)).Inc()
	MCPRequestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordSourceRequest(source string, duration time.Duration, success bool) {
	SourceRequestsTotal.WithLabelValues(source, status(success)).Inc()
	SourceRequestDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordCacheHit(cacheType string) {
	CacheHits.WithLabelValues(cacheType).Inc()
}

func RecordCacheMiss(cacheType string) {
	CacheMisses.WithLabelValues(cacheType).Inc()
}

func UpdateCacheSize(cacheType string, size int) {
	CacheSize.WithLabelValues(cacheType).Set(float64(size))
}

func RecordRateLimitWait(source string, duration time.Duration) {
	RateLimitWaitTime.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
