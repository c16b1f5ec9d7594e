package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/npmscout/pkg/observability"
)

// DefaultTTL is the record lifetime used when none is configured.
const DefaultTTL = 24 * time.Hour

// Store applies a fixed TTL on top of a [Backend]. Its methods never return
// errors: backend failures are logged and reported as a miss, false, or 0.
type Store struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  *log.Logger
	hooks   observability.CacheHooks
}

// Option configures a [Store].
type Option func(*Store)

// WithClock replaces time.Now. Tests use it to move time forward.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for absorbed backend errors.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHooks reports cache events to h.
func WithHooks(h observability.CacheHooks) Option {
	return func(s *Store) {
		if h != nil {
			s.hooks = h
		}
	}
}

// NewStore creates a store over backend. A non-positive ttl selects [DefaultTTL].
// A nil backend behaves like [NullBackend].
func NewStore(backend Backend, ttl time.Duration, opts ...Option) *Store {
	if backend == nil {
		backend = NullBackend{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
		logger:  log.Default(),
		hooks:   observability.NoopCacheHooks{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the record lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// Get returns the record for key when it exists and is younger than the TTL.
// A stale row is deleted before reporting the miss.
func (s *Store) Get(ctx context.Context, key string) (Record, bool) {
	rec, found, err := s.backend.Get(ctx, key)
	if err != nil {
		s.absorb(ctx, "get", err, "key", key)
		s.hooks.OnCacheMiss(ctx, KeyType(key), false)
		return Record{}, false
	}
	if !found {
		s.hooks.OnCacheMiss(ctx, KeyType(key), false)
		return Record{}, false
	}
	if rec.Age(s.now()) >= s.ttl {
		if _, err := s.backend.Delete(ctx, key); err != nil {
			s.absorb(ctx, "delete", err, "key", key)
		}
		s.hooks.OnCacheMiss(ctx, KeyType(key), true)
		return Record{}, false
	}
	s.hooks.OnCacheHit(ctx, KeyType(key))
	return rec, true
}

// Put upserts rec. A zero FetchedAt is set to the current time.
func (s *Store) Put(ctx context.Context, rec Record) bool {
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = s.now()
	}
	if err := s.backend.Put(ctx, rec); err != nil {
		s.absorb(ctx, "put", err, "key", rec.Key)
		return false
	}
	s.hooks.OnCacheSet(ctx, KeyType(rec.Key), len(rec.Payload))
	return true
}

// Delete removes the record for key. It reports false when nothing was
// deleted or the backend failed.
func (s *Store) Delete(ctx context.Context, key string) bool {
	ok, err := s.backend.Delete(ctx, key)
	if err != nil {
		s.absorb(ctx, "delete", err, "key", key)
		return false
	}
	return ok
}

// SweepExpired removes every record at least ttl old and returns the count.
// A non-positive ttl uses the store's TTL.
func (s *Store) SweepExpired(ctx context.Context, ttl time.Duration) int {
	if ttl <= 0 {
		ttl = s.ttl
	}
	n, err := s.backend.DeleteOlderThan(ctx, s.now().Add(-ttl))
	if err != nil {
		s.absorb(ctx, "sweep", err)
		return 0
	}
	s.hooks.OnCacheSweep(ctx, n)
	return n
}

// Stats counts total, expired, and valid records.
func (s *Store) Stats(ctx context.Context) Stats {
	total, expired, err := s.backend.Counts(ctx, s.now().Add(-s.ttl))
	if err != nil {
		s.absorb(ctx, "stats", err)
		return Stats{}
	}
	return Stats{Total: total, Expired: expired, Valid: total - expired}
}

// Clear removes every record and returns the count.
func (s *Store) Clear(ctx context.Context) int {
	n, err := s.backend.Clear(ctx)
	if err != nil {
		s.absorb(ctx, "clear", err)
		return 0
	}
	return n
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// GetJSON decodes a valid record into v. A payload that no longer decodes is
// treated as a miss and deleted.
func (s *Store) GetJSON(ctx context.Context, key string, v any) bool {
	rec, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(rec.Payload), v); err != nil {
		s.logger.Warn("discarding undecodable cache entry", "key", key, "err", err)
		s.Delete(ctx, key)
		return false
	}
	return true
}

// PutJSON encodes v and stores it under key with the current time.
func (s *Store) PutJSON(ctx context.Context, key string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		s.absorb(ctx, "encode", err, "key", key)
		return false
	}
	return s.Put(ctx, Record{Key: key, Payload: string(data), FetchedAt: s.now()})
}

func (s *Store) absorb(ctx context.Context, op string, err error, kv ...any) {
	s.logger.Warn("cache "+op+" failed", append(kv, "err", err)...)
	s.hooks.OnCacheError(ctx, op, err)
}
