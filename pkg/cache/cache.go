// Package cache persists enriched package records with a fixed time-to-live.
//
// The package is split in two layers:
//
//   - A [Backend] stores raw rows ({key, payload, fetched_at}) and reports
//     errors. [SQLiteBackend] is the durable implementation, [TieredBackend]
//     puts an in-process hot tier in front of any backend, and [NullBackend]
//     stores nothing.
//   - A [Store] applies the TTL on top of a backend and never returns errors:
//     backend failures are logged and reported as a miss, false, or zero, so a
//     broken cache can slow a search down but cannot fail it.
//
// A record is valid while now - fetched_at < ttl. Expired rows read through
// [Store.Get] are deleted opportunistically; [Store.SweepExpired] removes the
// rest in one statement.
//
// # Usage
//
//	backend, err := cache.OpenSQLite(path)
//	if err != nil {
//	    return err
//	}
//	store := cache.NewStore(backend, 24*time.Hour, cache.WithLogger(logger))
//	defer store.Close()
//
//	key := cache.NewDefaultKeyer().PackageKey("lodash", "")
//	var pkg model.EnrichedPackage
//	if store.GetJSON(ctx, key, &pkg) {
//	    // cache hit
//	}
package cache

import (
	"context"
	"time"
)

// Record is one cached row.
type Record struct {
	Key       string    // Derived from the package identity, see [Keyer]
	Payload   string    // JSON serialization of the cached value
	FetchedAt time.Time // When the payload was fetched from the network
}

// Age returns how old the record is at now.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.FetchedAt)
}

// Backend is the raw storage behind a [Store]. Implementations must be safe
// for concurrent use.
type Backend interface {
	// Get returns the row for key. found is false when no row exists.
	Get(ctx context.Context, key string) (rec Record, found bool, err error)

	// Put inserts or replaces the row for rec.Key.
	Put(ctx context.Context, rec Record) error

	// Delete removes the row for key. deleted is false when no row existed.
	Delete(ctx context.Context, key string) (deleted bool, err error)

	// DeleteOlderThan removes every row with fetched_at <= cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Counts returns the number of rows and how many have fetched_at <= cutoff.
	Counts(ctx context.Context, cutoff time.Time) (total, expired int, err error)

	// Clear removes every row.
	Clear(ctx context.Context) (int, error)

	// Close releases resources. Further calls return [ErrClosed].
	Close() error
}

// Stats summarizes the rows of a store. Total == Expired + Valid.
type Stats struct {
	Total   int `json:"total"`
	Expired int `json:"expired"`
	Valid   int `json:"valid"`
}

// unixSeconds converts t to fractional Unix seconds, the fetched_at column type.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// fromUnixSeconds is the inverse of unixSeconds.
func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}
