package search

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/model"
)

const tracerName = "github.com/matzehuels/npmscout/pkg/search"

// PageSource fetches one page of search results. Pages are 1-based.
type PageSource interface {
	SearchPage(ctx context.Context, query string, page, perPage int) ([]model.SearchResult, error)
}

// Fetcher collects up to a maximum number of results by requesting pages in
// concurrent bursts separated by a cooldown.
type Fetcher struct {
	source PageSource
	opts   Options
	tracer trace.Tracer
}

// NewFetcher creates a fetcher over source. Zero-valued numeric options take
// their defaults; see [DefaultOptions].
func NewFetcher(source PageSource, opts Options) *Fetcher {
	return &Fetcher{
		source: source,
		opts:   opts.withDefaults(),
		tracer: otel.Tracer(tracerName),
	}
}

// Options returns the effective options.
func (f *Fetcher) Options() Options { return f.opts }

// pageResult is the outcome of one page request.
type pageResult struct {
	page  int
	items []model.SearchResult
	err   error
}

// Fetch returns up to maxResults results for query.
//
// Pages that fail (after the HTTP layer's retries) are logged and contribute
// nothing; they never fail the fetch. The returned error is non-nil only for
// invalid input, configuration errors, or when ctx is cancelled or the
// deadline passes, in which case the partial result is returned with it.
func (f *Fetcher) Fetch(ctx context.Context, query string, maxResults int) (*Result, error) {
	res := &Result{}
	if maxResults <= 0 {
		return res, nil
	}
	if query == "" {
		return res, npmerrors.New(npmerrors.ErrCodeInvalidInput, "search query cannot be empty")
	}

	if f.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Deadline)
		defer cancel()
	}

	ctx, span := f.tracer.Start(ctx, "search.Fetch", trace.WithAttributes(
		attribute.String("search.query", query),
		attribute.Int("search.max_results", maxResults),
	))
	defer span.End()

	plan := planBursts(pagesNeeded(maxResults, f.opts.PageSize), f.opts.RequestsPerBurst)
	res.PagesPlanned = plan.pages()
	logger := f.opts.Logger.With("query", query)
	logger.Debug("search planned", "max", maxResults, "pages", res.PagesPlanned, "bursts", len(plan))

	var collected []pageResult
	for i, burst := range plan {
		if err := ctx.Err(); err != nil {
			return f.finish(res, collected, maxResults, span), err
		}
		if i > 0 {
			if err := f.cooldown(ctx, i, len(plan), res, collected); err != nil {
				return f.finish(res, collected, maxResults, span), err
			}
		}

		pages, err := f.runBurst(ctx, query, i, len(plan), burst, res, collected)
		collected = append(collected, pages...)
		res.Bursts++
		if err != nil {
			return f.finish(res, collected, maxResults, span), err
		}
		if err := ctx.Err(); err != nil {
			return f.finish(res, collected, maxResults, span), err
		}
		if f.opts.StopOnEmptyPage && hasShortPage(pages, f.opts.PageSize) {
			logger.Debug("result set exhausted", "burst", i+1)
			break
		}
	}

	out := f.finish(res, collected, maxResults, span)
	logger.Info("search complete",
		"results", len(out.Items),
		"pages", out.Pages,
		"failed", out.FailedPages,
		"rate_limited", out.RateLimitedPages)
	return out, nil
}

// runBurst fetches all pages of one burst concurrently and returns them in
// completion order. Pages in a burst are never cancelled because a sibling
// failed. A configuration error on any page is returned after the burst.
func (f *Fetcher) runBurst(ctx context.Context, query string, idx, total int, pages []int, res *Result, done []pageResult) ([]pageResult, error) {
	ctx, span := f.tracer.Start(ctx, "search.burst", trace.WithAttributes(
		attribute.Int("search.burst", idx+1),
		attribute.Int("search.pages", len(pages)),
	))
	defer span.End()

	start := time.Now()
	var (
		mu      sync.Mutex
		results = make([]pageResult, 0, len(pages))
		g       errgroup.Group
	)
	g.SetLimit(len(pages))

	for _, page := range pages {
		g.Go(func() error {
			pageStart := time.Now()
			items, err := f.source.SearchPage(ctx, query, page, f.opts.PageSize)
			f.opts.Hooks.Search.OnPageFetched(ctx, page, len(items), time.Since(pageStart), err)

			mu.Lock()
			results = append(results, pageResult{page: page, items: items, err: err})
			f.account(ctx, res, page, err)
			f.progress(Progress{
				Phase:      PhaseFetching,
				Burst:      idx + 1,
				Bursts:     total,
				PagesDone:  res.Pages,
				PagesTotal: res.PagesPlanned,
				Results:    countItems(done) + countItems(results),
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	f.opts.Hooks.Search.OnBurstComplete(ctx, idx, len(pages), time.Since(start))

	for _, r := range results {
		if npmerrors.Is(r.err, npmerrors.ErrCodeConfig) {
			span.SetStatus(codes.Error, "configuration error")
			return results, r.err
		}
	}
	return results, nil
}

// account updates the failure counters for one page. Callers hold the burst lock.
func (f *Fetcher) account(ctx context.Context, res *Result, page int, err error) {
	res.Pages++
	if err == nil {
		return
	}
	res.FailedPages++
	if rl := npmerrors.AsRateLimited(err); rl != nil {
		res.RateLimitedPages++
		if res.RateLimit == nil || rl.RetryAfter > res.RateLimit.RetryAfter {
			res.RateLimit = rl
		}
		f.opts.Hooks.Search.OnRateLimited(ctx, rl.RetryAfter)
	}
	f.opts.Logger.Warn("page failed", "page", page, "err", err)
}

// cooldown sleeps between bursts in one-second steps, reporting the remaining
// time before each step.
func (f *Fetcher) cooldown(ctx context.Context, next, total int, res *Result, done []pageResult) error {
	wait := f.opts.Cooldown
	if wait <= 0 {
		return nil
	}
	f.opts.Hooks.Search.OnCooldown(ctx, wait)
	f.opts.Logger.Info("cooling down before next burst", "wait", wait, "burst", next+1, "bursts", total)

	for remaining := wait; remaining > 0; {
		f.progress(Progress{
			Phase:      PhaseCooldown,
			Burst:      next,
			Bursts:     total,
			PagesDone:  res.Pages,
			PagesTotal: res.PagesPlanned,
			Results:    countItems(done),
			Remaining:  remaining,
		})
		step := min(time.Second, remaining)
		if err := f.opts.Sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
	}
	return nil
}

// finish assembles Items from the collected pages and records span attributes.
func (f *Fetcher) finish(res *Result, pages []pageResult, maxResults int, span trace.Span) *Result {
	if f.opts.PreserveOrder {
		pages = slices.Clone(pages)
		slices.SortStableFunc(pages, func(a, b pageResult) int { return a.page - b.page })
	}
	items := make([]model.SearchResult, 0, min(countItems(pages), maxResults))
	for _, p := range pages {
		items = append(items, p.items...)
	}
	if len(items) > maxResults {
		items = items[:maxResults]
	}
	res.Items = items

	span.SetAttributes(
		attribute.Int("search.results", len(items)),
		attribute.Int("search.pages_failed", res.FailedPages),
		attribute.Int("search.pages_rate_limited", res.RateLimitedPages),
	)
	if res.RateLimit != nil {
		span.SetStatus(codes.Error, res.RateLimit.Error())
	}
	return res
}

func (f *Fetcher) progress(p Progress) {
	if f.opts.Progress != nil {
		f.opts.Progress(p)
	}
}

// burstPlan is the list of page numbers requested per burst.
type burstPlan [][]int

func (p burstPlan) pages() int {
	n := 0
	for _, b := range p {
		n += len(b)
	}
	return n
}

// pagesNeeded returns ceil(maxResults / pageSize).
func pagesNeeded(maxResults, pageSize int) int {
	if maxResults <= 0 || pageSize <= 0 {
		return 0
	}
	return (maxResults + pageSize - 1) / pageSize
}

// planBursts partitions pages 1..n into consecutive bursts of at most size pages.
func planBursts(n, size int) burstPlan {
	if n <= 0 || size <= 0 {
		return nil
	}
	plan := make(burstPlan, 0, (n+size-1)/size)
	for start := 1; start <= n; start += size {
		end := min(start+size-1, n)
		burst := make([]int, 0, end-start+1)
		for p := start; p <= end; p++ {
			burst = append(burst, p)
		}
		plan = append(plan, burst)
	}
	return plan
}

// hasShortPage reports whether a successful page returned fewer than
// pageSize items, meaning the provider has no further results.
func hasShortPage(pages []pageResult, pageSize int) bool {
	for _, p := range pages {
		if p.err == nil && len(p.items) < pageSize {
			return true
		}
	}
	return false
}

func countItems(pages []pageResult) int {
	n := 0
	for _, p := range pages {
		n += len(p.items)
	}
	return n
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
