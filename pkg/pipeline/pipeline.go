// Package pipeline drives a complete search: paginated fetching with
// cooldowns, optional enrichment, and reporting of each state change.
//
// This package is shared by the CLI and the HTTP server so both run the same
// flow with the same defaults.
//
// # States
//
// A run moves through
//
//	Idle → Fetching(1) → Cooldown → Fetching(2) → … → Enriching → Done
//
// Failed is reached only for errors that retrying cannot fix: invalid
// requests, a missing API key, or cancellation. Transient network failures are
// absorbed per page or per package and never fail a run.
//
// # Usage
//
//	runner := pipeline.NewRunner(client, search.DefaultOptions(), enricher, logger)
//	runner.OnState = func(s pipeline.State) { fmt.Println(s) }
//	res, err := runner.Execute(ctx, pipeline.Request{Query: "lodash", MaxResults: 50, Enrich: true})
package pipeline

import (
	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultMaxResults is the result count used by the CLI and API when
	// none is given.
	DefaultMaxResults = 100

	// MaxResultsLimit bounds a single request. At the default page size this
	// is 100 pages, or two bursts.
	MaxResultsLimit = 10_000
)

// =============================================================================
// Request
// =============================================================================

// Request describes one search run.
// This struct supports JSON serialization for API requests.
type Request struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Enrich     bool   `json:"enrich,omitempty"`
	Refresh    bool   `json:"refresh,omitempty"` // Bypass the enrichment cache
	Ordered    bool   `json:"ordered,omitempty"` // Keep provider ranking order
}

// Validate checks the request. A MaxResults of 0 is valid and yields an empty
// result without any request.
func (r Request) Validate() error {
	if r.Query == "" {
		return npmerrors.New(npmerrors.ErrCodeInvalidInput, "search query cannot be empty")
	}
	if len(r.Query) > 256 {
		return npmerrors.New(npmerrors.ErrCodeInvalidInput, "search query too long (max 256 characters)")
	}
	if r.MaxResults < 0 {
		return npmerrors.New(npmerrors.ErrCodeInvalidInput, "max results must not be negative, got %d", r.MaxResults)
	}
	if r.MaxResults > MaxResultsLimit {
		return npmerrors.New(npmerrors.ErrCodeInvalidInput, "max results must be at most %d, got %d", MaxResultsLimit, r.MaxResults)
	}
	return nil
}
