// Package pkg holds the npmscout libraries.
//
// npmscout searches npm packages through Libraries.io, enriches the results
// with registry metadata and download counts, and keeps the enriched records
// in a local cache with a fixed time-to-live. The packages, from the bottom
// up:
//
//   - [errors]: coded errors and input validation
//   - [model]: search results, enriched packages and file listings
//   - [httputil]: retry policy for upstream calls
//   - [integrations]: the shared HTTP client and one subpackage per provider
//     (Libraries.io, the npm registry, unpkg)
//   - [cache]: TTL-bounded store over SQLite with an optional in-memory tier
//   - [search]: paginated search in bursts with a cooldown between them
//   - [enrich]: concurrent cache-first enrichment of search results
//   - [pipeline]: one search run, from query to enriched packages, as a
//     small state machine
//   - [tarball]: package tarball download and safe extraction
//   - [config]: TOML, .env and environment configuration
//   - [observability]: hook interfaces reported to metrics and traces
//
// # Data Flow
//
//	query
//	  ↓
//	[search] Libraries.io pages, burst by burst
//	  ↓
//	[enrich] cache hit, or npm registry + download counts
//	  ↓
//	[cache] write-back
//	  ↓
//	[pipeline.Result]
//
// # Quick Start
//
//	hc := integrations.NewClient(nil)
//	runner := pipeline.NewRunner(
//	    librariesio.NewClient(hc, "", apiKey),
//	    search.Options{},
//	    enrich.NewPipeline(enrich.NewRegistrySource(npm.NewClient(hc, "", "")), store, enrich.Options{}),
//	    logger,
//	)
//	res, err := runner.Execute(ctx, pipeline.Request{Query: "react state", MaxResults: 50, Enrich: true})
//
// [errors]: github.com/matzehuels/npmscout/pkg/errors
// [model]: github.com/matzehuels/npmscout/pkg/model
// [httputil]: github.com/matzehuels/npmscout/pkg/httputil
// [integrations]: github.com/matzehuels/npmscout/pkg/integrations
// [cache]: github.com/matzehuels/npmscout/pkg/cache
// [search]: github.com/matzehuels/npmscout/pkg/search
// [enrich]: github.com/matzehuels/npmscout/pkg/enrich
// [pipeline]: github.com/matzehuels/npmscout/pkg/pipeline
// [pipeline.Result]: github.com/matzehuels/npmscout/pkg/pipeline.Result
// [tarball]: github.com/matzehuels/npmscout/pkg/tarball
// [config]: github.com/matzehuels/npmscout/pkg/config
// [observability]: github.com/matzehuels/npmscout/pkg/observability
package pkg
