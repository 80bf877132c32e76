package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/ragcontext-mcp/internal/cache"
)

// DefaultQueryTimeout bounds a single query embedding call
const DefaultQueryTimeout = 10 * time.Second

// QueryEmbedder turns query text into a vector, consulting a cache first
type QueryEmbedder struct {
	provider Embedder
	cache    *cache.Cache[[]float32]
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// QueryEmbedderOptions configures a QueryEmbedder
type QueryEmbedderOptions struct {
	// Cache may be nil to disable caching
	Cache *cache.Cache[[]float32]

	// TTL for cached vectors; zero uses the cache default
	TTL time.Duration

	// Timeout bounds the provider call
	Timeout time.Duration

	Logger *slog.Logger
}

// NewQueryEmbedder wraps provider with caching and a call timeout
func NewQueryEmbedder(provider Embedder, opts QueryEmbedderOptions) *QueryEmbedder {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultQueryTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &QueryEmbedder{
		provider: provider,
		cache:    opts.Cache,
		ttl:      opts.TTL,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
}

// Embed returns the query vector for query.
// Failures of the provider are returned wrapped in ErrProviderFailed.
func (q *QueryEmbedder) Embed(ctx context.Context, query string) ([]float32, error) {
	text := strings.TrimSpace(query)
	if text == "" {
		return nil, ErrEmptyText
	}

	key := q.CacheKey(text)
	if vector, ok := q.cache.Get(ctx, key); ok {
		if len(vector) == q.provider.Dimension() {
			q.logger.Debug("embedding_cache_hit", "model", q.provider.Model())
			return vector, nil
		}
		q.logger.Warn("embedding_cache_dimension_mismatch",
			"model", q.provider.Model(),
			"cached", len(vector),
			"expected", q.provider.Dimension())
	}

	callCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	resp, err := q.provider.GenerateBatch(callCtx, BatchEmbeddingRequest{
		Texts:     []string{text},
		InputType: InputTypeQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	vector := resp.Embeddings[0].Vector
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty vector returned", ErrProviderFailed)
	}
	if len(vector) != q.provider.Dimension() {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), q.provider.Dimension())
	}

	// Written before returning so an immediate repeat is a hit
	q.cache.Set(context.WithoutCancel(ctx), key, append([]float32(nil), vector...), q.ttl)

	return vector, nil
}

// CacheKey derives the cache key for normalized query text
func (q *QueryEmbedder) CacheKey(text string) string {
	return cache.Key(q.provider.Provider(), q.provider.Model(), string(InputTypeQuery), text)
}

// Dimension returns the provider dimension
func (q *QueryEmbedder) Dimension() int {
	return q.provider.Dimension()
}

// Model returns the provider model
func (q *QueryEmbedder) Model() string {
	return q.provider.Model()
}

// CacheStats returns embedding cache counters
func (q *QueryEmbedder) CacheStats() cache.Stats {
	return q.cache.Stats()
}
