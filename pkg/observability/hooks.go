// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Components receive a [Hooks] value at
// construction time and report events about searches, enrichment, cache
// operations, and API calls through it.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Inject a [Hooks] bundle into each component (there is no global registry)
//
// Injection keeps tests isolated: two fetchers in the same process can report
// to different sinks, and nothing has to be reset between tests.
//
// # Usage
//
// Build the bundle once in main and pass it down:
//
//	hooks := metrics.New(prometheus.NewRegistry()).Hooks()
//	store := cache.NewStore(backend, ttl, cache.WithHooks(hooks.Cache))
//	fetcher := search.NewFetcher(client, search.Options{Hooks: hooks})
//
// Libraries call hooks to emit events:
//
//	h.Search.OnPageFetched(ctx, page, len(items), time.Since(start), err)
package observability

import (
	"context"
	"time"
)

// =============================================================================
// Search Hooks
// =============================================================================

// SearchHooks receives events from the paginated burst fetcher.
type SearchHooks interface {
	// OnPageFetched records one page request. err is nil on success.
	OnPageFetched(ctx context.Context, page, items int, duration time.Duration, err error)

	// OnBurstComplete records the end of a burst of concurrent page requests.
	OnBurstComplete(ctx context.Context, burst, pages int, duration time.Duration)

	// OnCooldown records the start of a cooldown window between bursts.
	OnCooldown(ctx context.Context, wait time.Duration)

	// OnRateLimited records a page rejected with HTTP 429.
	OnRateLimited(ctx context.Context, retryAfter int)
}

// =============================================================================
// Enrich Hooks
// =============================================================================

// Enrichment outcomes reported to [EnrichHooks.OnPackage].
const (
	OutcomeCached   = "cached"
	OutcomeEnriched = "enriched"
	OutcomeFallback = "fallback"
)

// EnrichHooks receives events from the enrichment pipeline.
type EnrichHooks interface {
	// OnBatchStart records the start of a batch with the given input size.
	OnBatchStart(ctx context.Context, size int)

	// OnPackage records the outcome for a single package.
	OnPackage(ctx context.Context, name, outcome string, duration time.Duration)

	// OnBatchComplete records batch totals.
	OnBatchComplete(ctx context.Context, cached, enriched, failed int, duration time.Duration)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss. expired is true when a row existed but was stale.
	OnCacheMiss(ctx context.Context, keyType string, expired bool)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)

	// OnCacheSweep records a sweep of expired rows.
	OnCacheSweep(ctx context.Context, removed int)

	// OnCacheError records a backend failure that was absorbed by the store.
	OnCacheError(ctx context.Context, op string, err error)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopSearchHooks is a no-op implementation of SearchHooks.
type NoopSearchHooks struct{}

func (NoopSearchHooks) OnPageFetched(context.Context, int, int, time.Duration, error) {}
func (NoopSearchHooks) OnBurstComplete(context.Context, int, int, time.Duration)      {}
func (NoopSearchHooks) OnCooldown(context.Context, time.Duration)                    {}
func (NoopSearchHooks) OnRateLimited(context.Context, int)                           {}

// NoopEnrichHooks is a no-op implementation of EnrichHooks.
type NoopEnrichHooks struct{}

func (NoopEnrichHooks) OnBatchStart(context.Context, int)                               {}
func (NoopEnrichHooks) OnPackage(context.Context, string, string, time.Duration)        {}
func (NoopEnrichHooks) OnBatchComplete(context.Context, int, int, int, time.Duration) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)           {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string, bool)    {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int)      {}
func (NoopCacheHooks) OnCacheSweep(context.Context, int)            {}
func (NoopCacheHooks) OnCacheError(context.Context, string, error) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Bundle
// =============================================================================

// Hooks bundles one implementation per event category.
// Nil fields are treated as no-ops; call [Hooks.OrNoop] before use.
type Hooks struct {
	Search SearchHooks
	Enrich EnrichHooks
	Cache  CacheHooks
	HTTP   HTTPHooks
}

// Noop returns a bundle where every category is a no-op.
func Noop() Hooks {
	return Hooks{
		Search: NoopSearchHooks{},
		Enrich: NoopEnrichHooks{},
		Cache:  NoopCacheHooks{},
		HTTP:   NoopHTTPHooks{},
	}
}

// OrNoop returns a copy of h with nil categories replaced by no-ops.
func (h Hooks) OrNoop() Hooks {
	if h.Search == nil {
		h.Search = NoopSearchHooks{}
	}
	if h.Enrich == nil {
		h.Enrich = NoopEnrichHooks{}
	}
	if h.Cache == nil {
		h.Cache = NoopCacheHooks{}
	}
	if h.HTTP == nil {
		h.HTTP = NoopHTTPHooks{}
	}
	return h
}
