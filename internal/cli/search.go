package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matzehuels/npmscout/pkg/model"
	"github.com/matzehuels/npmscout/pkg/pipeline"
)

type searchOptions struct {
	max         int
	enrich      bool
	refresh     bool
	ordered     bool
	json        bool
	interactive bool
	timeout     time.Duration
}

// searchCommand creates the search command.
func (c *CLI) searchCommand() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search npm packages",
		Long: `Search npm packages through Libraries.io.

Pages are requested in concurrent bursts sized to the provider's rate limit,
with a cooldown between bursts. With --enrich every result is completed with
registry metadata and download counts, served from the cache when fresh.`,
		Example: `  npmscout search react --max 250 --enrich
  npmscout search "date picker" --json > results.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.max, "max", "n", 0, "maximum number of results (default from config)")
	f.BoolVarP(&opts.enrich, "enrich", "e", false, "enrich results with registry metadata")
	f.BoolVar(&opts.refresh, "refresh", false, "bypass the cache when enriching")
	f.BoolVar(&opts.ordered, "ordered", true, "keep the provider's ranking order")
	f.BoolVar(&opts.json, "json", false, "print results as JSON")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "pick a result to show its details")
	f.DurationVar(&opts.timeout, "timeout", 0, "abort the whole search after this long")

	return cmd
}

func (c *CLI) runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	svc, err := c.open(cmd, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	req := pipeline.Request{
		Query:      query,
		MaxResults: svc.cfg.Search.MaxResults,
		Enrich:     opts.enrich || opts.interactive,
		Refresh:    opts.refresh,
		Ordered:    opts.ordered,
	}
	if cmd.Flags().Changed("max") {
		req.MaxResults = opts.max
	}

	ctx := cmd.Context()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	spinnerOut := cmd.ErrOrStderr()
	if opts.json {
		spinnerOut = io.Discard
	}
	spinner := newSpinnerTo(ctx, spinnerOut, fmt.Sprintf("Searching %q", query))
	svc.runner.OnState = func(s pipeline.State) { spinner.SetMessage(describeState(s)) }
	spinner.Start()
	start := time.Now()
	prog := newProgress(svc.logger)
	res, runErr := svc.runner.Execute(ctx, req)
	spinner.Stop()

	if runErr != nil && len(res.Packages) == 0 {
		return runErr
	}
	if runErr == nil {
		prog.done(fmt.Sprintf("Found %d packages", len(res.Packages)))
	}

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Packages); err != nil {
			return err
		}
		return runErr
	}

	if len(res.Packages) == 0 {
		printInfo(out, "No packages found for %q", query)
	} else if opts.interactive && runErr == nil {
		return pickPackage(cmd, res.Packages, start)
	} else {
		printPackageTable(out, res.Packages)
	}
	printSearchSummary(out, res)
	return runErr
}

// pickPackage lets the user select one result and prints its details.
// Records enriched before start came from the cache.
func pickPackage(cmd *cobra.Command, pkgs []model.EnrichedPackage, start time.Time) error {
	final, err := tea.NewProgram(NewPackageListModel(pkgs),
		tea.WithContext(cmd.Context()),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.ErrOrStderr()),
	).Run()
	if err != nil {
		return fmt.Errorf("package picker: %w", err)
	}
	m, ok := final.(PackageListModel)
	if !ok || m.Selected == nil {
		return nil
	}
	printPackage(cmd.OutOrStdout(), m.Selected, m.Selected.EnrichedAt.Before(start))
	return nil
}

func printSearchSummary(w io.Writer, res *pipeline.Result) {
	sr := res.Search
	if sr == nil {
		return
	}
	parts := []string{
		humanize.Comma(int64(len(res.Packages))) + " results",
		fmt.Sprintf("%d pages", sr.Pages),
	}
	if sr.Bursts > 1 {
		parts = append(parts, fmt.Sprintf("%d bursts", sr.Bursts))
	}
	if b := res.Batch; b != nil {
		parts = append(parts, fmt.Sprintf("%d cached", b.Cached), fmt.Sprintf("%d enriched", b.Enriched))
		if b.Failed > 0 {
			parts = append(parts, fmt.Sprintf("%d not enriched", b.Failed))
		}
	}
	parts = append(parts, (res.Stats.FetchTime + res.Stats.EnrichTime).Round(time.Millisecond).String())
	printStats(w, parts...)

	if sr.RateLimit != nil {
		wait := "later"
		if sr.RateLimit.RetryAfter > 0 {
			wait = "in " + (time.Duration(sr.RateLimit.RetryAfter) * time.Second).String()
		}
		printWarning(w, "Rate limited on %d of %d pages; retry %s", sr.RateLimitedPages, sr.Pages, wait)
	} else if sr.FailedPages > 0 {
		printWarning(w, "%d of %d pages failed; results are partial", sr.FailedPages, sr.Pages)
	}
	if errors.Is(res.State.Err, context.DeadlineExceeded) {
		printWarning(w, "Timed out; showing results collected so far")
	}
}

// describeState renders a pipeline state for the spinner.
func describeState(s pipeline.State) string {
	switch s.Phase {
	case pipeline.PhaseFetching:
		if s.Bursts > 1 {
			return fmt.Sprintf("Fetching burst %d of %d", s.Burst, s.Bursts)
		}
		return "Fetching results"
	case pipeline.PhaseCooldown:
		return fmt.Sprintf("Cooling down (%s left)", s.Remaining.Round(time.Second))
	case pipeline.PhaseEnriching:
		return "Enriching packages"
	}
	return s.String()
}
