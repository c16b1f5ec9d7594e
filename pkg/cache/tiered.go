package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// TieredBackend keeps recently used rows in memory in front of a durable
// backend. Rows keep their original fetched_at, so TTL decisions made by a
// [Store] are identical with or without the hot tier.
type TieredBackend struct {
	hot  *ristretto.Cache
	cold Backend

	// gen counts invalidations. A row read from the cold tier is only
	// remembered if no invalidation ran since the read started.
	mu  sync.Mutex
	gen uint64
}

// NewTieredBackend wraps cold with a ristretto hot tier bounded to maxBytes of
// payload and roughly maxEntries rows.
func NewTieredBackend(cold Backend, maxEntries, maxBytes int64) (*TieredBackend, error) {
	numCounters := maxEntries * 10
	if numCounters < 1000 {
		numCounters = 1000
	}
	hot, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create hot tier: %w", err)
	}
	return &TieredBackend{hot: hot, cold: cold}, nil
}

// Get serves from the hot tier when possible and populates it on a cold hit.
func (b *TieredBackend) Get(ctx context.Context, key string) (Record, bool, error) {
	if v, ok := b.hot.Get(key); ok {
		if rec, ok := v.(Record); ok {
			return rec, true, nil
		}
		b.hot.Del(key)
	}
	gen := b.generation()
	rec, found, err := b.cold.Get(ctx, key)
	if err != nil || !found {
		return rec, found, err
	}
	b.remember(rec, gen)
	return rec, true, nil
}

// Put writes through to the cold tier, then caches the row.
func (b *TieredBackend) Put(ctx context.Context, rec Record) error {
	gen := b.generation()
	if err := b.cold.Put(ctx, rec); err != nil {
		b.invalidate(func() { b.hot.Del(rec.Key) })
		return err
	}
	b.remember(rec, gen)
	return nil
}

// Delete removes key from both tiers. The hot tier is cleared again after
// the cold delete so a concurrent Get cannot leave the old row behind.
func (b *TieredBackend) Delete(ctx context.Context, key string) (bool, error) {
	b.hot.Del(key)
	ok, err := b.cold.Delete(ctx, key)
	b.invalidate(func() { b.hot.Del(key) })
	return ok, err
}

// DeleteOlderThan sweeps the cold tier and resets the hot tier.
func (b *TieredBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := b.cold.DeleteOlderThan(ctx, cutoff)
	b.invalidate(b.hot.Clear)
	return n, err
}

// Counts is answered by the cold tier, which holds every row.
func (b *TieredBackend) Counts(ctx context.Context, cutoff time.Time) (int, int, error) {
	return b.cold.Counts(ctx, cutoff)
}

// Clear empties both tiers.
func (b *TieredBackend) Clear(ctx context.Context) (int, error) {
	n, err := b.cold.Clear(ctx)
	b.invalidate(b.hot.Clear)
	return n, err
}

// Close releases the hot tier and closes the cold tier.
func (b *TieredBackend) Close() error {
	b.hot.Close()
	return b.cold.Close()
}

func (b *TieredBackend) generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

func (b *TieredBackend) invalidate(drop func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	drop()
	b.hot.Wait()
}

// remember caches rec unless the hot tier was invalidated after gen.
func (b *TieredBackend) remember(rec Record, gen uint64) {
	cost := int64(len(rec.Payload))
	if cost == 0 {
		cost = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		return
	}
	b.hot.Set(rec.Key, rec, cost)
	// Make the row visible to the next Get.
	b.hot.Wait()
}

var _ Backend = (*TieredBackend)(nil)
