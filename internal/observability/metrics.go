package observability

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream provider call rate by host. Watch for: error vs success ratio.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream provider latency per request. Watch for: p95 > 2s (provider degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Retry attempts against upstream providers. High retries = unstable provider.
	UpstreamRetriesTotal prometheus.Counter

	// Response-cache hits by provider host. Hit rate = hits/(hits+upstreamCallsTotal).
	CacheHitsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Impact calculator invocations.
	ImpactCalculationsTotal prometheus.Counter

	// Articles produced per scrape by source.
	ScrapedArticlesTotal *prometheus.CounterVec

	cacheGaugeOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream provider calls",
		},
		[]string{"host", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"host"},
	)
	UpstreamRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upstreamRetriesTotal",
			Help: "Total number of retry attempts for upstream provider calls",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of response-cache hits by provider host",
		},
		[]string{"host"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	ImpactCalculationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "impactCalculationsTotal",
			Help: "Total number of impact calculator invocations",
		},
	)
	ScrapedArticlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapedArticlesTotal",
			Help: "Articles produced per scrape, by source",
		},
		[]string{"source"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal,
		CacheHitsTotal, RateLimitDeniedTotal,
		ImpactCalculationsTotal, ScrapedArticlesTotal,
	)
}

// RegisterCacheSizeGauge registers a gauge reporting the number of entries in
// the in-memory response cache. Call from main when the in-memory backend is
// active; safe to call at most once.
func RegisterCacheSizeGauge(size func() int) {
	cacheGaugeOnce.Do(func() {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "responseCacheEntries",
				Help: "Entries currently held in the in-memory response cache",
			},
			func() float64 { return float64(size()) },
		))
	})
}

// HostLabel extracts the host from a URL for use as a metric label. Falls
// back to "unknown" when the URL does not parse.
func HostLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
