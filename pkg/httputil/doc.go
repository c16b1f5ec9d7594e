// Package httputil provides retry helpers for the upstream API clients.
//
// Transient failures (network errors, 5xx responses) are wrapped with
// [Retryable] by the caller; anything else ends the loop immediately. A 429
// is never retried here: the search pipeline owns rate-limit handling.
//
//	policy := httputil.Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
//	err := policy.Do(ctx, func() error {
//	    resp, err := hc.Do(req)
//	    if err != nil {
//	        return httputil.Retryable(err)
//	    }
//	    ...
//	})
//
// The delay doubles after every failed attempt, capped at MaxDelay. A
// [RetryableError] with After set (from a Retry-After header) replaces the
// computed delay for the next attempt.
package httputil
