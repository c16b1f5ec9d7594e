// Package search collects npm search results from a paginated provider under
// a per-minute request budget.
//
// # Algorithm
//
// For a maximum of N results and a page size of P, the [Fetcher] requests
// ceil(N/P) pages. Pages are grouped into bursts of RequestsPerBurst pages
// that run concurrently. Between bursts (never after the last) the fetcher
// sleeps for Cooldown, reporting the remaining time once per second.
// Results are concatenated and truncated to N.
//
// # Failures
//
// Each page is retried by the HTTP layer. A page that still fails is logged
// and contributes nothing. Rate-limited pages (HTTP 429) are not retried;
// they are counted in [Result] and the longest Retry-After is kept in
// Result.RateLimit so callers can tell the user to wait. Only cancellation,
// an expired Deadline, invalid input, or a configuration error (such as a
// missing API key) end a fetch with an error, and the partial result is
// still returned.
//
// # Ordering
//
// Results arrive in completion order, which varies between runs. Set
// Options.PreserveOrder to sort by page number.
package search
