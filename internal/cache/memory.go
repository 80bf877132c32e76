package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryEntries bounds the in-process backend when no size is given
const DefaultMemoryEntries = 1000

// MemoryBackend is an in-process LRU backend with per-entry expiry
type MemoryBackend struct {
	entries *lru.Cache[string, *Entry]
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryBackend creates an LRU backend holding at most size entries
func NewMemoryBackend(size int) (*MemoryBackend, error) {
	if size <= 0 {
		size = DefaultMemoryEntries
	}

	entries, err := lru.New[string, *Entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &MemoryBackend{
		entries: entries,
		now:     time.Now,
	}, nil
}

// Get returns a copy of the stored value
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, found := m.entries.Get(key)
	if !found {
		m.mu.RUnlock()
		return nil, ErrNotFound
	}

	// Check expiry while holding the read lock so the entry cannot change under us
	if entry.Expired(m.now()) {
		m.mu.RUnlock()

		m.mu.Lock()
		// Only remove if nobody replaced it in between
		if current, ok := m.entries.Peek(key); ok && current == entry {
			m.entries.Remove(key)
		}
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	value := append([]byte(nil), entry.Value...)
	m.mu.RUnlock()

	return value, nil
}

// Set stores a copy of value until ttl elapses
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("invalid ttl %s", ttl)
	}

	entry := &Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		ExpiresAt: m.now().Add(ttl),
	}

	m.mu.Lock()
	m.entries.Add(key, entry)
	m.mu.Unlock()

	return nil
}

// Delete removes key
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	m.entries.Remove(key)
	m.mu.Unlock()
	return nil
}

// Purge drops every entry
func (m *MemoryBackend) Purge(_ context.Context) error {
	m.mu.Lock()
	m.entries.Purge()
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries.Len()
}
