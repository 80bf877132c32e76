package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLBackend stores entries in the cache_entries table of the chunk store.
//
// expires_at holds Unix nanoseconds. Expired rows read as misses and are
// deleted lazily; Purge removes every expired row.
type SQLBackend struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLBackend wraps an open database that already has the cache_entries table
func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db, now: time.Now}
}

// Get returns the stored value for key
func (b *SQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt int64

	err := b.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if b.now().UnixNano() >= expiresAt {
		if _, err := b.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE key = ? AND expires_at = ?`, key, expiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to delete expired cache entry: %w", err)
		}
		return nil, ErrNotFound
	}

	return value, nil
}

// Set upserts value under key
func (b *SQLBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("invalid ttl %s", ttl)
	}

	expiresAt := b.now().Add(ttl).UnixNano()
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes key
func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Purge removes expired rows
func (b *SQLBackend) Purge(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, b.now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to purge cache entries: %w", err)
	}
	return nil
}
