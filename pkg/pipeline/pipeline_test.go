package pipeline

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/npmscout/pkg/enrich"
	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/model"
	"github.com/matzehuels/npmscout/pkg/search"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{Query: "lodash", MaxResults: 10}, false},
		{"zero max", Request{Query: "lodash"}, false},
		{"empty query", Request{MaxResults: 10}, true},
		{"negative max", Request{Query: "lodash", MaxResults: -1}, true},
		{"over limit", Request{Query: "lodash", MaxResults: MaxResultsLimit + 1}, true},
	}

	for _, tt := range tests {
		err := tt.req.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !npmerrors.Is(err, npmerrors.ErrCodeInvalidInput) {
			t.Errorf("%s: error code = %s, want INVALID_INPUT", tt.name, npmerrors.GetCode(err))
		}
	}
}

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseFetching, true},
		{PhaseFetching, PhaseCooldown, true},
		{PhaseCooldown, PhaseFetching, true},
		{PhaseFetching, PhaseEnriching, true},
		{PhaseEnriching, PhaseDone, true},
		{PhaseCooldown, PhaseEnriching, false},
		{PhaseDone, PhaseFetching, false},
		{PhaseFailed, PhaseIdle, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if !PhaseDone.Terminal() || !PhaseFailed.Terminal() || PhaseCooldown.Terminal() {
		t.Error("only done and failed are terminal")
	}
}

// pagedSource returns full pages of synthetic results, or err for every page.
type pagedSource struct {
	total int
	err   error
}

func (s pagedSource) SearchPage(_ context.Context, _ string, page, perPage int) ([]model.SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.SearchResult
	for i := (page - 1) * perPage; i < min(page*perPage, s.total); i++ {
		out = append(out, model.SearchResult{Name: fmt.Sprintf("pkg-%d", i)})
	}
	return out, nil
}

type fakeEnricher struct{ fail string }

func (f fakeEnricher) Enrich(_ context.Context, r model.SearchResult) (*model.EnrichedPackage, error) {
	if r.Name == f.fail {
		return nil, fmt.Errorf("boom")
	}
	p := model.FromSearchResult(r)
	p.Enriched = true
	return &p, nil
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) phases() []Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Phase, len(l.states))
	for i, s := range l.states {
		out[i] = s.Phase
	}
	return out
}

func newRunner(t *testing.T, source search.PageSource, withEnricher bool) (*Runner, *stateLog) {
	t.Helper()
	logger := log.New(io.Discard)
	opts := search.DefaultOptions()
	opts.PageSize = 10
	opts.RequestsPerBurst = 2
	opts.Cooldown = 2 * time.Second
	opts.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	opts.Logger = logger

	var enricher *enrich.Pipeline
	if withEnricher {
		enricher = enrich.NewPipeline(fakeEnricher{fail: "pkg-3"}, nil, enrich.Options{Logger: logger})
	}
	r := NewRunner(source, opts, enricher, logger)
	states := &stateLog{}
	r.OnState = states.record
	return r, states
}

func assertLegal(t *testing.T, phases []Phase) {
	t.Helper()
	for i := 1; i < len(phases); i++ {
		if !phases[i-1].CanTransition(phases[i]) {
			t.Errorf("illegal transition %s -> %s in %v", phases[i-1], phases[i], phases)
		}
	}
}

func TestExecuteFullRun(t *testing.T) {
	r, states := newRunner(t, pagedSource{total: 1000}, true)

	res, err := r.Execute(context.Background(), Request{Query: "q", MaxResults: 45, Enrich: true, Ordered: true})
	if err != nil {
		t.Fatal(err)
	}

	want := []Phase{
		PhaseIdle,
		PhaseFetching, PhaseCooldown,
		PhaseFetching, PhaseCooldown,
		PhaseFetching,
		PhaseEnriching, PhaseDone,
	}
	if got := states.phases(); !slices.Equal(got, want) {
		t.Errorf("phases = %v, want %v", got, want)
	}
	if len(res.Packages) != 45 {
		t.Fatalf("len = %d, want 45", len(res.Packages))
	}
	if res.Packages[0].Name != "pkg-0" || res.Packages[44].Name != "pkg-44" {
		t.Errorf("ordered run should keep page order: first %q last %q", res.Packages[0].Name, res.Packages[44].Name)
	}
	if res.Batch.Failed != 1 || res.Packages[3].Enriched {
		t.Errorf("pkg-3 should fall back: batch %+v", res.Batch)
	}
	if res.State.Phase != PhaseDone || res.RunID == "" {
		t.Errorf("final state = %+v", res.State)
	}
	for _, s := range states.states {
		if s.RunID != res.RunID {
			t.Fatalf("state carries run id %q, want %q", s.RunID, res.RunID)
		}
	}
}

func TestExecuteWithoutEnrichment(t *testing.T) {
	r, states := newRunner(t, pagedSource{total: 5}, false)

	res, err := r.Execute(context.Background(), Request{Query: "q", MaxResults: 100})
	if err != nil {
		t.Fatal(err)
	}
	if got := states.phases(); !slices.Equal(got, []Phase{PhaseIdle, PhaseFetching, PhaseDone}) {
		t.Errorf("phases = %v", got)
	}
	if len(res.Packages) != 5 || res.Batch != nil {
		t.Errorf("result = %+v", res)
	}
	for _, p := range res.Packages {
		if p.Enriched {
			t.Error("packages should be unenriched")
		}
	}
}

func TestExecuteZeroMax(t *testing.T) {
	r, states := newRunner(t, pagedSource{err: fmt.Errorf("must not be called")}, true)

	res, err := r.Execute(context.Background(), Request{Query: "q", Enrich: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := states.phases(); !slices.Equal(got, []Phase{PhaseIdle, PhaseDone}) {
		t.Errorf("phases = %v", got)
	}
	if len(res.Packages) != 0 || res.Search.Pages != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteMissingAPIKeyFails(t *testing.T) {
	cfgErr := npmerrors.New(npmerrors.ErrCodeConfig, "libraries.io API key is not set")
	r, states := newRunner(t, pagedSource{err: cfgErr}, false)

	res, err := r.Execute(context.Background(), Request{Query: "q", MaxResults: 50})
	if !npmerrors.Is(err, npmerrors.ErrCodeConfig) {
		t.Fatalf("err = %v, want CONFIG_ERROR", err)
	}
	phases := states.phases()
	assertLegal(t, phases)
	if phases[len(phases)-1] != PhaseFailed || res.State.Err == nil {
		t.Errorf("phases = %v, state = %+v", phases, res.State)
	}
	if slices.Contains(phases, PhaseCooldown) {
		t.Error("a configuration error must not wait for a cooldown")
	}
}

func TestExecuteNetworkFailuresDoNotFail(t *testing.T) {
	r, states := newRunner(t, pagedSource{err: fmt.Errorf("connection refused")}, false)

	res, err := r.Execute(context.Background(), Request{Query: "q", MaxResults: 20})
	if err != nil {
		t.Fatalf("transient failures must not fail the run: %v", err)
	}
	if res.State.Phase != PhaseDone || res.Search.FailedPages != 2 {
		t.Errorf("state = %s, search = %+v", res.State, res.Search)
	}
	assertLegal(t, states.phases())
}

func TestExecuteInvalidRequest(t *testing.T) {
	r, states := newRunner(t, pagedSource{total: 10}, false)

	_, err := r.Execute(context.Background(), Request{MaxResults: 10})
	if !npmerrors.Is(err, npmerrors.ErrCodeInvalidInput) {
		t.Errorf("err = %v", err)
	}
	if got := states.phases(); !slices.Equal(got, []Phase{PhaseIdle, PhaseFailed}) {
		t.Errorf("phases = %v", got)
	}

	_, err = r.Execute(context.Background(), Request{Query: "q", MaxResults: 10, Enrich: true})
	if !npmerrors.Is(err, npmerrors.ErrCodeConfig) {
		t.Errorf("enrich without enricher: err = %v, want CONFIG_ERROR", err)
	}
}

func TestExecuteCancelledDuringCooldown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, states := newRunner(t, pagedSource{total: 1000}, true)
	r.Search.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res, err := r.Execute(ctx, Request{Query: "q", MaxResults: 45, Enrich: true})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	phases := states.phases()
	assertLegal(t, phases)
	if phases[len(phases)-1] != PhaseFailed {
		t.Errorf("phases = %v", phases)
	}
	if len(res.Packages) != 20 {
		t.Errorf("partial packages = %d, want the first burst (20)", len(res.Packages))
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{State{Phase: PhaseFetching, Burst: 2, Bursts: 3}, "fetching(2/3)"},
		{State{Phase: PhaseCooldown, Remaining: time.Minute}, "cooldown(1m0s)"},
		{State{Phase: PhaseDone}, "done"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
