package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default timings for a Cache
const (
	DefaultTTL          = 5 * time.Minute
	DefaultWriteTimeout = 2 * time.Second
)

// Options configures a Cache
type Options struct {
	// Name identifies the cache in log events ("embeddings", "search")
	Name string

	// TTL applies when Set is called with a non-positive ttl
	TTL time.Duration

	// WriteTimeout bounds each Set and SetAsync write
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Stats reports lookup counters
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache is a typed view over a Backend that never returns errors.
//
// Values are stored as JSON. A backend failure on read is logged and reported
// as a miss; a failure on write or delete is logged and ignored. A nil *Cache
// is valid and behaves as a cache that never hits.
type Cache[V any] struct {
	backend      Backend
	name         string
	ttl          time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger

	pending sync.WaitGroup
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a Cache over backend
func New[V any](backend Backend, opts Options) *Cache[V] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "cache"
	}

	return &Cache[V]{
		backend:      backend,
		name:         opts.Name,
		ttl:          opts.TTL,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger.With("cache", opts.Name),
	}
}

// Get returns the value for key and whether it was found
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}

	raw, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("cache_get_failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return zero, false
	}

	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		c.logger.Warn("cache_decode_failed", "key", key, "error", err)
		c.misses.Add(1)
		return zero, false
	}

	c.hits.Add(1)
	return value, true
}

// Set stores value under key, bounded by the write timeout. A non-positive
// ttl uses the cache default.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	if c == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache_encode_failed", "key", key, "error", err)
		return
	}

	if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("cache_set_failed", "key", key, "error", err)
	}
}

// SetAsync stores value in the background, bounded by the write timeout.
// The write is detached from the caller's context.
func (c *Cache[V]) SetAsync(key string, value V, ttl time.Duration) {
	if c == nil {
		return
	}

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
		defer cancel()
		c.Set(ctx, key, value, ttl)
	}()
}

// Flush waits for outstanding SetAsync writes
func (c *Cache[V]) Flush() {
	if c == nil {
		return
	}
	c.pending.Wait()
}

// Delete removes key
func (c *Cache[V]) Delete(ctx context.Context, key string) {
	if c == nil {
		return
	}
	if err := c.backend.Delete(ctx, key); err != nil {
		c.logger.Warn("cache_delete_failed", "key", key, "error", err)
	}
}

// Purge drops entries when the backend supports it
func (c *Cache[V]) Purge(ctx context.Context) {
	if c == nil {
		return
	}
	purger, ok := c.backend.(Purger)
	if !ok {
		return
	}
	if err := purger.Purge(ctx); err != nil {
		c.logger.Warn("cache_purge_failed", "error", err)
	}
}

// Stats returns hit and miss counts since creation
func (c *Cache[V]) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Name returns the cache name used in logs
func (c *Cache[V]) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Key derives a fixed-length key from ordered parts
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
