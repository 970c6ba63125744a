// Package metrics exposes Prometheus collectors for the freshness engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	extractionsTotal           *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	cacheEvictionsTotal        *prometheus.CounterVec
	deepFetchesTotal           *prometheus.CounterVec
	deepFetchDurationSeconds   prometheus.Histogram
	quotaDecisionsTotal        *prometheus.CounterVec
	licenseVerificationsTotal  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staleness_extractions_total",
				Help: "Total pipeline extractions, labeled by winning source.",
			},
			[]string{"source"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staleness_cache_lookups_total",
				Help: "Total cache lookups, labeled by outcome (hit, negative_hit, stale, miss).",
			},
			[]string{"outcome"},
		)

		cacheEvictionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staleness_cache_evictions_total",
				Help: "Total cache evictions, labeled by reason (expired, max_age, max_entries).",
			},
			[]string{"reason"},
		)

		deepFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staleness_deep_fetches_total",
				Help: "Total deep fetches issued, labeled by outcome (found, no_date, error, non_html, shared).",
			},
			[]string{"outcome"},
		)

		deepFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "staleness_deep_fetch_duration_seconds",
				Help:    "Histogram of deep fetch wall-clock durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
			},
		)

		quotaDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staleness_quota_decisions_total",
				Help: "Total quota checks, labeled by decision (allowed, denied).",
			},
			[]string{"decision"},
		)

		licenseVerificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staleness_license_verifications_total",
				Help: "Total license authority calls, labeled by result (paid, unpaid, error).",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveExtraction records the winning source of a pipeline run.
func ObserveExtraction(source string) {
	if extractionsTotal != nil {
		extractionsTotal.WithLabelValues(source).Inc()
	}
}

// ObserveCacheLookup records a cache lookup outcome.
func ObserveCacheLookup(outcome string) {
	if cacheLookupsTotal != nil {
		cacheLookupsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveCacheEviction records evicted entries by reason.
func ObserveCacheEviction(reason string, count int) {
	if cacheEvictionsTotal != nil && count > 0 {
		cacheEvictionsTotal.WithLabelValues(reason).Add(float64(count))
	}
}

// ObserveDeepFetch records a deep fetch outcome with its duration.
func ObserveDeepFetch(outcome string, duration time.Duration) {
	if deepFetchesTotal != nil {
		deepFetchesTotal.WithLabelValues(outcome).Inc()
	}
	if deepFetchDurationSeconds != nil && duration > 0 {
		deepFetchDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveQuotaDecision records an allow/deny quota decision.
func ObserveQuotaDecision(allowed bool) {
	if quotaDecisionsTotal == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	quotaDecisionsTotal.WithLabelValues(decision).Inc()
}

// ObserveLicenseVerification records the result of an authority call.
func ObserveLicenseVerification(result string) {
	if licenseVerificationsTotal != nil {
		licenseVerificationsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
