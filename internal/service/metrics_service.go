package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// token allocator.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	tokenConflicts  prometheus.Counter
	tokenAttempts   prometheus.Histogram
	submissions     *prometheus.CounterVec
	statusChanges   *prometheus.CounterVec
}

// NewMetricsService registers the core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	tokenConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_token_conflicts_total",
		Help: "Insert-time token collisions that triggered a retry",
	})

	tokenAttempts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrollment_token_attempts",
		Help:    "Allocation attempts needed per successful submission",
		Buckets: []float64{1, 2, 3, 5, 10},
	})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_submissions_total",
		Help: "Pre-enrollment submissions by outcome",
	}, []string{"outcome"})

	statusChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_status_changes_total",
		Help: "Status transitions applied by staff",
	}, []string{"to"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		tokenConflicts, tokenAttempts, submissions, statusChanges, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		tokenConflicts:  tokenConflicts,
		tokenAttempts:   tokenAttempts,
		submissions:     submissions,
		statusChanges:   statusChanges,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordTokenConflict counts an insert-time token collision.
func (m *MetricsService) RecordTokenConflict() {
	if m == nil {
		return
	}
	m.tokenConflicts.Inc()
}

// RecordSubmission records one submission outcome and how many allocation
// attempts it took.
func (m *MetricsService) RecordSubmission(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.tokenAttempts.Observe(float64(attempts))
	}
}

// RecordStatusChange counts a review transition into the given status.
func (m *MetricsService) RecordStatusChange(to string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(to).Inc()
}
