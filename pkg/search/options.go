package search

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/model"
	"github.com/matzehuels/npmscout/pkg/observability"
)

// Defaults match the Libraries.io free tier: 60 requests per minute with at
// most 100 results per page.
const (
	DefaultPageSize         = 100
	DefaultRequestsPerBurst = 60
	DefaultCooldown         = 60 * time.Second
)

// Options configures a [Fetcher].
type Options struct {
	PageSize         int           // Results per page (default 100)
	RequestsPerBurst int           // Concurrent page requests per burst (default 60)
	Cooldown         time.Duration // Pause between bursts, never after the last (default 60s)

	// StopOnEmptyPage skips later bursts once a page in a burst returned
	// fewer than PageSize results.
	StopOnEmptyPage bool

	// PreserveOrder sorts results by page number. By default results are in
	// completion order.
	PreserveOrder bool

	// Deadline bounds the whole fetch, cooldowns included (0 = none).
	Deadline time.Duration

	// Progress receives fetch and cooldown progress. It is called with the
	// burst lock held and must not block.
	Progress func(Progress)

	// Sleep waits during cooldown. Tests replace it to avoid real waits.
	Sleep func(ctx context.Context, d time.Duration) error

	Hooks  observability.Hooks
	Logger *log.Logger
}

// DefaultOptions returns the recommended options, including
// StopOnEmptyPage.
func DefaultOptions() Options {
	return Options{
		PageSize:         DefaultPageSize,
		RequestsPerBurst: DefaultRequestsPerBurst,
		Cooldown:         DefaultCooldown,
		StopOnEmptyPage:  true,
	}
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.RequestsPerBurst <= 0 {
		o.RequestsPerBurst = DefaultRequestsPerBurst
	}
	if o.Cooldown < 0 {
		o.Cooldown = 0
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	o.Hooks = o.Hooks.OrNoop()
	return o
}

// Progress phases.
const (
	PhaseFetching = "fetching"
	PhaseCooldown = "cooldown"
)

// Progress describes where a fetch is. During cooldown Burst is the number of
// bursts finished so far and Remaining counts down in whole seconds.
type Progress struct {
	Phase      string
	Burst      int
	Bursts     int
	PagesDone  int
	PagesTotal int
	Results    int
	Remaining  time.Duration
}

// Result is the outcome of [Fetcher.Fetch].
type Result struct {
	Items []model.SearchResult

	PagesPlanned     int // ceil(max / PageSize)
	Pages            int // Pages actually requested
	FailedPages      int // Pages that failed after retries, including rate-limited ones
	RateLimitedPages int // Pages rejected with HTTP 429
	Bursts           int // Bursts started

	// RateLimit is the rate-limit error with the longest Retry-After seen,
	// or nil if no page was rate limited.
	RateLimit *npmerrors.RateLimitedError
}

// Partial reports whether some requested pages failed.
func (r *Result) Partial() bool { return r.FailedPages > 0 }
