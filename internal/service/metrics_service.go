package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API
// and the promotion engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	activityTotal   *prometheus.CounterVec
	levelUnlocks    *prometheus.CounterVec
	claimsTotal     *prometheus.CounterVec
	ticketsIssued   prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	activityTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_activities_total",
		Help: "Domain activities folded into promotion progress",
	}, []string{"kind"})

	levelUnlocks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_level_unlocks_total",
		Help: "Promotion levels completed and unlocked",
	}, []string{"club_id"})

	claimsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_claims_total",
		Help: "Claim lifecycle events by resulting status",
	}, []string{"status"})

	ticketsIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tickets_issued_total",
		Help: "Tickets minted for paid orders",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		activityTotal, levelUnlocks, claimsTotal, ticketsIssued, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		activityTotal:   activityTotal,
		levelUnlocks:    levelUnlocks,
		claimsTotal:     claimsTotal,
		ticketsIssued:   ticketsIssued,
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

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordActivity counts one ingested domain activity.
func (m *MetricsService) RecordActivity(kind string) {
	if m == nil {
		return
	}
	m.activityTotal.WithLabelValues(kind).Inc()
}

// RecordLevelUnlock counts one completed-and-unlocked level.
func (m *MetricsService) RecordLevelUnlock(clubID string) {
	if m == nil {
		return
	}
	m.levelUnlocks.WithLabelValues(clubID).Inc()
}

// RecordClaim counts a claim lifecycle event by resulting status.
func (m *MetricsService) RecordClaim(status string) {
	if m == nil {
		return
	}
	m.claimsTotal.WithLabelValues(status).Inc()
}

// RecordTicketsIssued counts minted tickets.
func (m *MetricsService) RecordTicketsIssued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ticketsIssued.Add(float64(n))
}
