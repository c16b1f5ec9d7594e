package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/npmscout/pkg/enrich"
	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/model"
	"github.com/matzehuels/npmscout/pkg/search"
)

// Runner executes search runs.
// Both CLI and API use this to avoid duplicating the flow.
//
// The Runner holds no per-run state, so multiple goroutines can execute runs
// concurrently. OnState, when set, must be safe for concurrent use in that
// case.
type Runner struct {
	Source   search.PageSource
	Search   search.Options
	Enricher *enrich.Pipeline // nil disables enrichment
	Logger   *log.Logger

	// OnState receives every transition. It is called synchronously,
	// sometimes from fetch workers, and must not block.
	OnState func(State)
}

// NewRunner creates a runner. enricher may be nil.
func NewRunner(source search.PageSource, opts search.Options, enricher *enrich.Pipeline, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Source:   source,
		Search:   opts,
		Enricher: enricher,
		Logger:   logger,
	}
}

// Result is the outcome of [Runner.Execute].
type Result struct {
	RunID    string
	State    State
	Packages []model.EnrichedPackage
	Search   *search.Result
	Batch    *enrich.Batch // nil when enrichment was not requested
	Stats    Stats
}

// Stats holds timings of a run.
type Stats struct {
	FetchTime  time.Duration
	EnrichTime time.Duration
}

// Execute runs req to completion. The result is never nil; on error it holds
// whatever was collected before the failure and State is Failed.
func (r *Runner) Execute(ctx context.Context, req Request) (*Result, error) {
	run := &run{
		runner: r,
		logger: r.Logger,
		res:    &Result{RunID: uuid.NewString()},
	}
	run.logger = r.Logger.With("run", run.res.RunID[:8])
	run.emit(State{Phase: PhaseIdle})

	if err := req.Validate(); err != nil {
		return run.fail(err)
	}
	if req.Enrich && r.Enricher == nil {
		return run.fail(npmerrors.New(npmerrors.ErrCodeConfig, "enrichment requested but no enricher is configured"))
	}

	opts := r.Search
	opts.PreserveOrder = req.Ordered
	userProgress := opts.Progress
	opts.Progress = func(p search.Progress) {
		run.progress(p)
		if userProgress != nil {
			userProgress(p)
		}
	}

	fetchStart := time.Now()
	sr, err := search.NewFetcher(r.Source, opts).Fetch(ctx, req.Query, req.MaxResults)
	run.res.Stats.FetchTime = time.Since(fetchStart)
	run.res.Search = sr
	if err != nil {
		run.res.Packages = fallbacks(sr)
		return run.fail(err)
	}
	if sr.RateLimit != nil {
		run.logger.Warn("search was rate limited", "pages", sr.RateLimitedPages, "retry_after", sr.RateLimit.RetryAfter)
	}

	if !req.Enrich || len(sr.Items) == 0 {
		run.res.Packages = fallbacks(sr)
		run.emit(State{Phase: PhaseDone})
		return run.res, nil
	}

	run.emit(State{Phase: PhaseEnriching})
	enrichStart := time.Now()
	batch := r.Enricher.Derive(req.Refresh, req.Ordered).Run(ctx, sr.Items)
	run.res.Stats.EnrichTime = time.Since(enrichStart)
	run.res.Batch = batch
	run.res.Packages = batch.Packages
	if err := ctx.Err(); err != nil {
		return run.fail(err)
	}

	run.logger.Info("run complete",
		"results", len(batch.Packages),
		"cached", batch.Cached,
		"failed", batch.Failed,
		"duration", run.res.Stats.FetchTime+run.res.Stats.EnrichTime)
	run.emit(State{Phase: PhaseDone})
	return run.res, nil
}

// run tracks one execution. progress is called from fetch workers, so the
// current state is guarded.
type run struct {
	runner *Runner
	logger *log.Logger
	res    *Result

	mu sync.Mutex
}

func (r *run) emit(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(s)
}

func (r *run) emitLocked(s State) {
	s.RunID = r.res.RunID
	prev := r.res.State.Phase
	if prev != "" && !prev.CanTransition(s.Phase) {
		r.logger.Error("invalid state transition", "from", prev, "to", s.Phase)
	}
	r.res.State = s
	r.logger.Debug("state", "phase", s.Phase, "burst", s.Burst)
	if r.runner.OnState != nil {
		r.runner.OnState(s)
	}
}

// progress turns fetcher progress into transitions: one Fetching state per
// burst and one Cooldown state per cooldown window.
func (r *run) progress(p search.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.res.State
	switch p.Phase {
	case search.PhaseFetching:
		if cur.Phase != PhaseFetching || cur.Burst != p.Burst {
			r.emitLocked(State{Phase: PhaseFetching, Burst: p.Burst, Bursts: p.Bursts})
		}
	case search.PhaseCooldown:
		if cur.Phase != PhaseCooldown {
			r.emitLocked(State{Phase: PhaseCooldown, Burst: p.Burst, Bursts: p.Bursts, Remaining: p.Remaining})
		}
	}
}

func (r *run) fail(err error) (*Result, error) {
	level := r.logger.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		level = r.logger.Warn
	}
	level("run failed", "err", err)
	r.emit(State{Phase: PhaseFailed, Err: err})
	return r.res, err
}

// fallbacks converts search hits to unenriched records.
func fallbacks(sr *search.Result) []model.EnrichedPackage {
	if sr == nil {
		return nil
	}
	out := make([]model.EnrichedPackage, len(sr.Items))
	for i, it := range sr.Items {
		out[i] = model.FromSearchResult(it)
	}
	return out
}
