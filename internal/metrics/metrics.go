// Package metrics implements the observability hooks with Prometheus
// collectors registered on a caller-supplied registry.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matzehuels/npmscout/pkg/observability"
)

const namespace = "npmscout"

// Metrics holds every collector. Create one per registry with [New].
type Metrics struct {
	// Search
	PagesTotal       *prometheus.CounterVec // status: ok, failed
	PageDuration     prometheus.Histogram
	PageItems        prometheus.Counter
	BurstsTotal      prometheus.Counter
	BurstDuration    prometheus.Histogram
	CooldownSeconds  prometheus.Counter
	RateLimitedTotal prometheus.Counter
	RetryAfter       prometheus.Histogram

	// Enrich
	BatchesTotal    prometheus.Counter
	BatchSize       prometheus.Histogram
	PackagesTotal   *prometheus.CounterVec // outcome: cached, enriched, fallback
	PackageDuration *prometheus.HistogramVec
	BatchDuration   prometheus.Histogram

	// Cache
	CacheHits   *prometheus.CounterVec // key_type
	CacheMisses *prometheus.CounterVec // key_type, expired
	CacheSets   *prometheus.CounterVec // key_type
	CacheBytes  *prometheus.CounterVec // key_type
	CacheSwept  prometheus.Counter
	CacheErrors *prometheus.CounterVec // op

	// HTTP
	HTTPRequests *prometheus.CounterVec // host, status
	HTTPDuration *prometheus.HistogramVec
	HTTPErrors   *prometheus.CounterVec // host
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search",
			Name: "pages_total",
			Help: "Search pages requested, by outcome",
		}, []string{"status"}),
		PageDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search",
			Name:    "page_duration_seconds",
			Help:    "Duration of one search page request including retries",
			Buckets: prometheus.DefBuckets,
		}),
		PageItems: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search",
			Name: "results_total",
			Help: "Search results received",
		}),
		BurstsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search",
			Name: "bursts_total",
			Help: "Bursts of concurrent page requests",
		}),
		BurstDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search",
			Name:    "burst_duration_seconds",
			Help:    "Duration of one burst",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),
		CooldownSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search",
			Name: "cooldown_seconds_total",
			Help: "Time spent cooling down between bursts",
		}),
		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search",
			Name: "rate_limited_total",
			Help: "Pages rejected with HTTP 429",
		}),
		RetryAfter: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search",
			Name:    "retry_after_seconds",
			Help:    "Retry-After values sent with HTTP 429",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 3600},
		}),

		BatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "enrich",
			Name: "batches_total",
			Help: "Enrichment batches started",
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "enrich",
			Name:    "batch_size",
			Help:    "Inputs per enrichment batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 7),
		}),
		PackagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "enrich",
			Name: "packages_total",
			Help: "Packages processed, by outcome",
		}, []string{"outcome"}),
		PackageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "enrich",
			Name:    "package_duration_seconds",
			Help:    "Time to enrich one package",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "enrich",
			Name:    "batch_duration_seconds",
			Help:    "Duration of one enrichment batch",
			Buckets: prometheus.DefBuckets,
		}),

		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache",
			Name: "hits_total",
			Help: "Cache hits",
		}, []string{"key_type"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache",
			Name: "misses_total",
			Help: "Cache misses; expired is true for stale rows",
		}, []string{"key_type", "expired"}),
		CacheSets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache",
			Name: "sets_total",
			Help: "Cache writes",
		}, []string{"key_type"}),
		CacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache",
			Name: "written_bytes_total",
			Help: "Payload bytes written to the cache",
		}, []string{"key_type"}),
		CacheSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache",
			Name: "swept_total",
			Help: "Expired rows removed by sweeps",
		}),
		CacheErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache",
			Name: "errors_total",
			Help: "Cache backend failures absorbed by the store",
		}, []string{"op"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http",
			Name: "requests_total",
			Help: "Provider HTTP responses by host and status code",
		}, []string{"host", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http",
			Name:    "request_duration_seconds",
			Help:    "Provider HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"host"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http",
			Name: "errors_total",
			Help: "Provider HTTP requests that failed without a response",
		}, []string{"host"}),
	}
}

// Hooks returns a bundle reporting to m.
func (m *Metrics) Hooks() observability.Hooks {
	return observability.Hooks{
		Search: searchHooks{m},
		Enrich: enrichHooks{m},
		Cache:  cacheHooks{m},
		HTTP:   httpHooks{m},
	}
}

type searchHooks struct{ m *Metrics }

func (h searchHooks) OnPageFetched(_ context.Context, _ int, items int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	h.m.PagesTotal.WithLabelValues(status).Inc()
	h.m.PageDuration.Observe(d.Seconds())
	h.m.PageItems.Add(float64(items))
}

func (h searchHooks) OnBurstComplete(_ context.Context, _, _ int, d time.Duration) {
	h.m.BurstsTotal.Inc()
	h.m.BurstDuration.Observe(d.Seconds())
}

func (h searchHooks) OnCooldown(_ context.Context, wait time.Duration) {
	h.m.CooldownSeconds.Add(wait.Seconds())
}

func (h searchHooks) OnRateLimited(_ context.Context, retryAfter int) {
	h.m.RateLimitedTotal.Inc()
	h.m.RetryAfter.Observe(float64(retryAfter))
}

type enrichHooks struct{ m *Metrics }

func (h enrichHooks) OnBatchStart(_ context.Context, size int) {
	h.m.BatchesTotal.Inc()
	h.m.BatchSize.Observe(float64(size))
}

func (h enrichHooks) OnPackage(_ context.Context, _ string, outcome string, d time.Duration) {
	h.m.PackagesTotal.WithLabelValues(outcome).Inc()
	h.m.PackageDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (h enrichHooks) OnBatchComplete(_ context.Context, _, _, _ int, d time.Duration) {
	h.m.BatchDuration.Observe(d.Seconds())
}

type cacheHooks struct{ m *Metrics }

func (h cacheHooks) OnCacheHit(_ context.Context, keyType string) {
	h.m.CacheHits.WithLabelValues(keyType).Inc()
}

func (h cacheHooks) OnCacheMiss(_ context.Context, keyType string, expired bool) {
	h.m.CacheMisses.WithLabelValues(keyType, strconv.FormatBool(expired)).Inc()
}

func (h cacheHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.m.CacheSets.WithLabelValues(keyType).Inc()
	h.m.CacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (h cacheHooks) OnCacheSweep(_ context.Context, removed int) {
	h.m.CacheSwept.Add(float64(removed))
}

func (h cacheHooks) OnCacheError(_ context.Context, op string, _ error) {
	h.m.CacheErrors.WithLabelValues(op).Inc()
}

type httpHooks struct{ m *Metrics }

func (httpHooks) OnRequest(context.Context, string, string, string) {}

func (h httpHooks) OnResponse(_ context.Context, _, host, _ string, statusCode int, d time.Duration) {
	h.m.HTTPRequests.WithLabelValues(host, strconv.Itoa(statusCode)).Inc()
	h.m.HTTPDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (h httpHooks) OnError(_ context.Context, _, host, _ string, _ error) {
	h.m.HTTPErrors.WithLabelValues(host).Inc()
}
