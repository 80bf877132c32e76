// Package cache provides TTL key-value caching that never fails its callers.
//
// A Backend stores raw bytes and reports errors. Cache[V] wraps a backend,
// encodes values as JSON and absorbs every backend failure: a failed read is a
// miss, a failed write is a no-op, and both are logged.
//
// Two backends are provided:
//   - MemoryBackend: in-process LRU with per-entry expiry
//   - SQLBackend: the cache_entries table of the SQLite chunk store
//
// # Usage
//
//	backend, _ := cache.NewMemoryBackend(1000)
//	vectors := cache.New[[]float32](backend, cache.Options{
//	    Name: "embeddings",
//	    TTL:  24 * time.Hour,
//	})
//
//	key := cache.Key(model, "query", text)
//	if v, ok := vectors.Get(ctx, key); ok {
//	    return v, nil
//	}
//	vectors.Set(ctx, key, v, 0)
package cache
