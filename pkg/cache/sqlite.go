package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS package_cache (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	fetched_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_package_cache_fetched_at ON package_cache(fetched_at);`

// SQLiteBackend stores rows in a single SQLite table using the pure-Go
// modernc.org/sqlite driver. Every operation is one statement, so the
// database/sql connection pool is the only synchronization needed.
type SQLiteBackend struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// OpenSQLite opens (or creates) the cache database at path.
// Use ":memory:" for an in-memory database. Parent directories are created.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	// Pragmas go in the DSN so that every pooled connection gets them.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

// Path returns the database location passed to [OpenSQLite].
func (b *SQLiteBackend) Path() string { return b.path }

// Get returns the row for key.
func (b *SQLiteBackend) Get(ctx context.Context, key string) (Record, bool, error) {
	if b.closed.Load() {
		return Record{}, false, ErrClosed
	}
	var (
		payload   string
		fetchedAt float64
	)
	err := b.db.QueryRowContext(ctx,
		"SELECT payload, fetched_at FROM package_cache WHERE key = ?", key,
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get %q: %w", key, err)
	}
	return Record{Key: key, Payload: payload, FetchedAt: fromUnixSeconds(fetchedAt)}, true, nil
}

// Put upserts rec.
func (b *SQLiteBackend) Put(ctx context.Context, rec Record) error {
	if b.closed.Load() {
		return ErrClosed
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO package_cache (key, payload, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at`,
		rec.Key, rec.Payload, unixSeconds(rec.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("put %q: %w", rec.Key, err)
	}
	return nil
}

// Delete removes the row for key.
func (b *SQLiteBackend) Delete(ctx context.Context, key string) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	res, err := b.db.ExecContext(ctx, "DELETE FROM package_cache WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	return n > 0, nil
}

// DeleteOlderThan removes rows with fetched_at <= cutoff.
func (b *SQLiteBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	res, err := b.db.ExecContext(ctx,
		"DELETE FROM package_cache WHERE fetched_at <= ?", unixSeconds(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	return int(n), nil
}

// Counts returns the total row count and the number of rows at or before cutoff.
func (b *SQLiteBackend) Counts(ctx context.Context, cutoff time.Time) (int, int, error) {
	if b.closed.Load() {
		return 0, 0, ErrClosed
	}
	var total, expired int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN fetched_at <= ? THEN 1 ELSE 0 END), 0)
		 FROM package_cache`, unixSeconds(cutoff),
	).Scan(&total, &expired)
	if err != nil {
		return 0, 0, fmt.Errorf("counts: %w", err)
	}
	return total, expired, nil
}

// Clear removes every row.
func (b *SQLiteBackend) Clear(ctx context.Context) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	res, err := b.db.ExecContext(ctx, "DELETE FROM package_cache")
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	return int(n), nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

var _ Backend = (*SQLiteBackend)(nil)
