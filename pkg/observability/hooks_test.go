package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()
	h := Noop()

	h.Search.OnPageFetched(ctx, 1, 100, time.Second, nil)
	h.Search.OnBurstComplete(ctx, 0, 60, time.Second)
	h.Search.OnCooldown(ctx, time.Minute)
	h.Search.OnRateLimited(ctx, 30)

	h.Enrich.OnBatchStart(ctx, 10)
	h.Enrich.OnPackage(ctx, "lodash", OutcomeCached, time.Millisecond)
	h.Enrich.OnBatchComplete(ctx, 1, 8, 1, time.Second)

	h.Cache.OnCacheHit(ctx, "pkg")
	h.Cache.OnCacheMiss(ctx, "pkg", true)
	h.Cache.OnCacheSet(ctx, "pkg", 1024)
	h.Cache.OnCacheSweep(ctx, 3)
	h.Cache.OnCacheError(ctx, "put", nil)

	h.HTTP.OnRequest(ctx, "GET", "registry.npmjs.org", "/lodash")
	h.HTTP.OnResponse(ctx, "GET", "registry.npmjs.org", "/lodash", 200, time.Second)
	h.HTTP.OnError(ctx, "GET", "registry.npmjs.org", "/lodash", nil)
}

func TestOrNoopFillsMissingCategories(t *testing.T) {
	custom := &testCacheHooks{}
	h := Hooks{Cache: custom}.OrNoop()

	if h.Cache != custom {
		t.Error("OrNoop should keep custom cache hooks")
	}
	if _, ok := h.Search.(NoopSearchHooks); !ok {
		t.Error("OrNoop should default Search to NoopSearchHooks")
	}
	if _, ok := h.Enrich.(NoopEnrichHooks); !ok {
		t.Error("OrNoop should default Enrich to NoopEnrichHooks")
	}
	if _, ok := h.HTTP.(NoopHTTPHooks); !ok {
		t.Error("OrNoop should default HTTP to NoopHTTPHooks")
	}

	h.Cache.OnCacheHit(context.Background(), "pkg")
	if custom.hits != 1 {
		t.Errorf("hits = %d, want 1", custom.hits)
	}
}

func TestBundlesAreIndependent(t *testing.T) {
	a, b := &testCacheHooks{}, &testCacheHooks{}
	ha := Hooks{Cache: a}.OrNoop()
	hb := Hooks{Cache: b}.OrNoop()

	ha.Cache.OnCacheHit(context.Background(), "pkg")
	if a.hits != 1 || b.hits != 0 {
		t.Errorf("hits a=%d b=%d, want 1 and 0", a.hits, b.hits)
	}
	_ = hb
}

type testCacheHooks struct {
	NoopCacheHooks
	hits int
}

func (h *testCacheHooks) OnCacheHit(context.Context, string) { h.hits++ }
