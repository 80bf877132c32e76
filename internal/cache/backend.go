package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by backends for missing or expired keys
var ErrNotFound = errors.New("cache: key not found")

// Backend is a key-value store with per-entry expiry.
//
// Backends report failures as errors; Cache turns them into misses and no-ops.
type Backend interface {
	// Get returns the stored value or ErrNotFound when the key is absent or expired
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key until ttl elapses
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// Purger is implemented by backends that can drop all or expired entries
type Purger interface {
	Purge(ctx context.Context) error
}

// Entry is a stored value with its expiry time
type Entry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry is no longer valid at now
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
