package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/npmscout/internal/metrics"
	"github.com/matzehuels/npmscout/pkg/cache"
	"github.com/matzehuels/npmscout/pkg/enrich"
	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/model"
	"github.com/matzehuels/npmscout/pkg/pipeline"
	"github.com/matzehuels/npmscout/pkg/search"
)

// pages serves total results named pkg-1..pkg-total.
type pages struct {
	total int
	err   error
}

func (p pages) SearchPage(_ context.Context, _ string, page, perPage int) ([]model.SearchResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	var out []model.SearchResult
	for i := (page-1)*perPage + 1; i <= min(page*perPage, p.total); i++ {
		out = append(out, model.SearchResult{Name: fmt.Sprintf("pkg-%d", i), Rank: i})
	}
	return out, nil
}

type registry struct{}

func (registry) Enrich(_ context.Context, r model.SearchResult) (*model.EnrichedPackage, error) {
	if r.Name == "missing" {
		return nil, integrations.ErrNotFound
	}
	p := model.FromSearchResult(r)
	p.Description = "enriched " + r.Name
	p.Enriched = true
	return &p, nil
}

type files struct{}

func (files) FetchTree(_ context.Context, pkg, _ string) (*model.FileNode, error) {
	if pkg != "lodash" {
		return nil, integrations.ErrNotFound
	}
	return &model.FileNode{Path: "/", Type: model.NodeDirectory, Files: []model.FileNode{
		{Path: "/package.json", Type: model.NodeFile, Size: 10},
	}}, nil
}

func (files) FetchReadme(_ context.Context, pkg, _ string) (string, string, error) {
	if pkg != "lodash" {
		return "", "", fmt.Errorf("%w: none of README.md", integrations.ErrNotFound)
	}
	return "README.md", "# lodash", nil
}

func newTestServer(t *testing.T, source search.PageSource) (*httptest.Server, *cache.Store, *prometheus.Registry) {
	t.Helper()
	quiet := log.New(io.Discard)

	backend, err := cache.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	store := cache.NewStore(backend, time.Hour, cache.WithLogger(quiet))
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	hooks := metrics.New(reg).Hooks()

	enricher := enrich.NewPipeline(registry{}, store, enrich.Options{Workers: 4, Hooks: hooks, Logger: quiet})
	runner := pipeline.NewRunner(source, search.Options{
		PageSize:         10,
		RequestsPerBurst: 5,
		Cooldown:         time.Second,
		StopOnEmptyPage:  true,
		Sleep:            func(context.Context, time.Duration) error { return nil },
		Hooks:            hooks,
		Logger:           quiet,
	}, enricher, quiet)

	srv := New(Config{
		Searcher: runner,
		Enricher: enricher,
		Files:    files{},
		Cache:    store,
		Gatherer: reg,
		Logger:   quiet,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store, reg
}

func get(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t, pages{})
	var body map[string]string
	if resp := get(t, ts.URL+"/healthz", &body); resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}
}

func TestSearch(t *testing.T) {
	ts, _, _ := newTestServer(t, pages{total: 35})

	var body searchResponse
	resp := get(t, ts.URL+"/api/search?q=react&max=25&enrich=true&ordered=true", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.State != string(pipeline.PhaseDone) || body.Count != 25 || len(body.Packages) != 25 {
		t.Fatalf("body = %+v", body)
	}
	if body.Packages[0].Name != "pkg-1" || !body.Packages[0].Enriched {
		t.Errorf("first = %+v", body.Packages[0])
	}
	if body.RunID == "" || body.Pages != 3 || body.Partial {
		t.Errorf("run_id = %q, pages = %d, partial = %v", body.RunID, body.Pages, body.Partial)
	}
}

func TestSearchWithoutEnrichment(t *testing.T) {
	ts, _, _ := newTestServer(t, pages{total: 5})

	var body searchResponse
	get(t, ts.URL+"/api/search?q=tiny", &body)
	if body.Count != 5 {
		t.Fatalf("count = %d, want 5", body.Count)
	}
	for _, p := range body.Packages {
		if p.Enriched {
			t.Errorf("%s enriched without enrich=true", p.Name)
		}
	}
}

func TestSearchRateLimited(t *testing.T) {
	ts, _, reg := newTestServer(t, pages{err: &npmerrors.RateLimitedError{RetryAfter: 30}})

	var body searchResponse
	resp := get(t, ts.URL+"/api/search?q=react&max=20", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.RateLimitedPages != 2 || body.RetryAfter != 30 || !body.Partial || body.Count != 0 {
		t.Errorf("body = %+v", body)
	}
	if got := resp.Header.Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q", got)
	}

	m := get(t, ts.URL+"/metrics", nil)
	if m.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", m.StatusCode)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "npmscout_search_rate_limited_total" {
			found = f.GetMetric()[0].GetCounter().GetValue() == 2
		}
	}
	if !found {
		t.Error("rate-limited pages not reported to the registry")
	}
}

func TestSearchBadRequests(t *testing.T) {
	ts, _, _ := newTestServer(t, pages{total: 5})

	tests := []struct {
		name, query string
		wantCode    string
	}{
		{"missing query", "", "INVALID_INPUT"},
		{"bad max", "q=x&max=lots", "INVALID_INPUT"},
		{"negative max", "q=x&max=-1", "INVALID_INPUT"},
		{"over limit", "q=x&max=20000", "INVALID_INPUT"},
		{"bad bool", "q=x&enrich=maybe", "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]errorBody
			resp := get(t, ts.URL+"/api/search?"+tt.query, &body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if body["error"].Code != tt.wantCode || body["error"].RequestID == "" {
				t.Errorf("error = %+v", body["error"])
			}
		})
	}
}

func TestDetails(t *testing.T) {
	ts, store, _ := newTestServer(t, pages{})

	var pkg model.EnrichedPackage
	resp := get(t, ts.URL+"/api/details?name=Lodash", &pkg)
	if resp.StatusCode != http.StatusOK || pkg.Name != "lodash" || !pkg.Enriched {
		t.Fatalf("details = %d %+v", resp.StatusCode, pkg)
	}
	if st := store.Stats(context.Background()); st.Valid != 1 {
		t.Errorf("cache stats = %+v, want one valid row", st)
	}

	var stats cache.Stats
	get(t, ts.URL+"/api/cache/stats", &stats)
	if stats.Total != 1 || stats.Valid != 1 {
		t.Errorf("/api/cache/stats = %+v", stats)
	}

	tests := []struct {
		query  string
		status int
	}{
		{"name=missing", http.StatusNotFound},
		{"name=", http.StatusBadRequest},
		{"name=lodash&refresh=yes-please", http.StatusBadRequest},
		{"name=lodash&refresh=true", http.StatusOK},
	}
	for _, tt := range tests {
		if resp := get(t, ts.URL+"/api/details?"+tt.query, nil); resp.StatusCode != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.query, resp.StatusCode, tt.status)
		}
	}
}

func TestFiles(t *testing.T) {
	ts, _, _ := newTestServer(t, pages{})

	var node model.FileNode
	if resp := get(t, ts.URL+"/api/tree?name=lodash", &node); resp.StatusCode != http.StatusOK {
		t.Fatalf("tree status = %d", resp.StatusCode)
	}
	if files, size := node.Stats(); files != 1 || size != 10 {
		t.Errorf("tree stats = %d files, %d bytes", files, size)
	}

	var readme readmeResponse
	get(t, ts.URL+"/api/readme?name=lodash", &readme)
	if readme.File != "README.md" || !strings.HasPrefix(readme.Content, "# lodash") {
		t.Errorf("readme = %+v", readme)
	}

	var body map[string]errorBody
	resp := get(t, ts.URL+"/api/readme?name=left-pad", &body)
	if resp.StatusCode != http.StatusNotFound || body["error"].Code != "NOT_FOUND" {
		t.Errorf("missing readme = %d %+v", resp.StatusCode, body)
	}
}

func TestFilesDisabled(t *testing.T) {
	srv := New(Config{Logger: log.New(io.Discard)})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tree?name=lodash", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without gatherer = %d, want 404", rec.Code)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{integrations.ErrNotFound, http.StatusNotFound},
		{integrations.ErrCircuitOpen, http.StatusBadGateway},
		{&npmerrors.RateLimitedError{RetryAfter: 1}, http.StatusTooManyRequests},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{npmerrors.New(npmerrors.ErrCodeConfig, "no key"), http.StatusServiceUnavailable},
		{npmerrors.New(npmerrors.ErrCodeInvalidPackage, "bad"), http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := classify(tt.err); got != tt.status {
			t.Errorf("classify(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}

func TestListenAndServeShutsDown(t *testing.T) {
	srv := New(Config{Logger: log.New(io.Discard)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
