// Package integrations provides HTTP clients for the package data providers.
//
// # Overview
//
// This package contains low-level API clients. Each provider has its own
// subpackage:
//
//   - [librariesio]: Libraries.io search (npm platform)
//   - [npm]: npm registry documents and download counts
//   - [unpkg]: package file listings and raw files
//
// # Client Pattern
//
// All provider clients embed a shared [Client]:
//
//	hc := integrations.NewClient(
//	    map[string]string{"User-Agent": ua},
//	    integrations.WithTimeout(10*time.Second),
//	    integrations.WithRateLimit(5, 10),
//	    integrations.WithCircuitBreaker("npm", 5, 30*time.Second),
//	)
//	registry := npm.NewClient(hc, "", "")
//	pkg, err := registry.FetchPackage(ctx, "express", "")
//
// # Shared Infrastructure
//
// [Client] handles:
//   - Per-request timeouts and default headers
//   - Retries with exponential backoff for network failures and 5xx responses
//   - Status mapping: 404 to [ErrNotFound], 429 to a rate-limit error that
//     carries Retry-After and is never retried, everything else to [ErrNetwork]
//   - Optional client-side rate limiting and circuit breaking
//   - HTTP events reported to [observability.HTTPHooks]
//
// [Cached] wraps a fetch with a lookup in a [cache.Store].
//
// [librariesio]: github.com/matzehuels/npmscout/pkg/integrations/librariesio
// [npm]: github.com/matzehuels/npmscout/pkg/integrations/npm
// [unpkg]: github.com/matzehuels/npmscout/pkg/integrations/unpkg
// [cache.Store]: github.com/matzehuels/npmscout/pkg/cache.Store
// [observability.HTTPHooks]: github.com/matzehuels/npmscout/pkg/observability.HTTPHooks
package integrations
