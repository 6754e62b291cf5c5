// Package metrics exposes Prometheus collectors for the agenda service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	eventsParsedTotal          *prometheus.CounterVec
	eventsInvalidTotal         *prometheus.CounterVec
	eventsUpsertedTotal        *prometheus.CounterVec
	dedupMergedGroupsTotal     prometheus.Counter
	clicksTotal                *prometheus.CounterVec
	scrapeRunsTotal            *prometheus.CounterVec
	visionRequestsTotal        *prometheus.CounterVec
	renderDurationSeconds      *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	publishTotal               *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agenda_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agenda_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"method", "route"},
		)

		eventsParsedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agenda_events_parsed_total",
				Help: "Event records extracted from captions, listings and images, labeled by source.",
			},
			[]string{"source"},
		)

		eventsInvalidTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agenda_events_invalid_total",
				Help: "Extracted records rejected by validation, labeled by source.",
			},
			[]string{"source"},
		)

		eventsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agenda_events_upserted_total",
				Help: "Rows written to the events table, labeled by source.",
			},
			[]string{"source"},
		)

		dedupMergedGroupsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agenda_dedup_merged_groups_total",
				Help: "Groups of duplicate records collapsed into one.",
			},
		)

		clicksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agenda_clicks_total",
				Help: "Redirect clicks, labeled by outcome (counted, duplicate, missing).",
			},
			[]string{"outcome"},
		)

		scrapeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agenda_scrape_runs_total",
				Help: "Completed scrape runs, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		visionRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agenda_vision_requests_total",
				Help: "Vision model calls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		renderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agenda_render_duration_seconds",
				Help:    "Histogram of headless render durations, labeled by image kind.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agenda_rate_limit_delays_seconds",
				Help:    "Histogram of scraper politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		publishTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agenda_publish_total",
				Help: "Ingestion notices published, labeled by status.",
			},
			[]string{"status"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveParsed counts extracted and rejected records for a source.
func ObserveParsed(source string, parsed, invalid int) {
	Init()
	if parsed > 0 {
		eventsParsedTotal.WithLabelValues(source).Add(float64(parsed))
	}
	if invalid > 0 {
		eventsInvalidTotal.WithLabelValues(source).Add(float64(invalid))
	}
}

// ObserveUpserted counts rows written for a source.
func ObserveUpserted(source string, n int) {
	Init()
	if n > 0 {
		eventsUpsertedTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveDedup counts merged groups.
func ObserveDedup(merged int) {
	Init()
	if merged > 0 {
		dedupMergedGroupsTotal.Add(float64(merged))
	}
}

// ObserveClick counts a redirect by outcome.
func ObserveClick(outcome string) {
	Init()
	clicksTotal.WithLabelValues(outcome).Inc()
}

// ObserveScrapeRun counts a finished scrape run.
func ObserveScrapeRun(source, status string) {
	Init()
	scrapeRunsTotal.WithLabelValues(source, status).Inc()
}

// ObserveVision counts a vision model call by outcome.
func ObserveVision(outcome string) {
	Init()
	visionRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRender records how long a render took.
func ObserveRender(kind string, duration time.Duration) {
	Init()
	renderDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObservePublish counts a publish attempt.
func ObservePublish(status string) {
	Init()
	publishTotal.WithLabelValues(status).Inc()
}
