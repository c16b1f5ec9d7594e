package cache

import (
	"context"
	"time"
)

// NullBackend is a no-op backend that never stores anything.
// Useful for testing or when caching should be disabled.
type NullBackend struct{}

// NewNullBackend creates a null backend.
func NewNullBackend() Backend {
	return NullBackend{}
}

// Get always returns a miss.
func (NullBackend) Get(context.Context, string) (Record, bool, error) {
	return Record{}, false, nil
}

// Put does nothing.
func (NullBackend) Put(context.Context, Record) error { return nil }

// Delete reports that nothing was deleted.
func (NullBackend) Delete(context.Context, string) (bool, error) { return false, nil }

// DeleteOlderThan removes nothing.
func (NullBackend) DeleteOlderThan(context.Context, time.Time) (int, error) { return 0, nil }

// Counts reports an empty cache.
func (NullBackend) Counts(context.Context, time.Time) (int, int, error) { return 0, 0, nil }

// Clear removes nothing.
func (NullBackend) Clear(context.Context) (int, error) { return 0, nil }

// Close does nothing.
func (NullBackend) Close() error { return nil }

var _ Backend = NullBackend{}
