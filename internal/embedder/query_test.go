package embedder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ragcontext-mcp/internal/cache"
)

// countingEmbedder implements Embedder and records batch calls
type countingEmbedder struct {
	dim       int
	calls     atomic.Int32
	batchFunc func(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)
	lastReq   BatchEmbeddingRequest
}

func (c *countingEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return singleFromBatch(ctx, c, req)
}

func (c *countingEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	c.calls.Add(1)
	c.lastReq = req
	if c.batchFunc != nil {
		return c.batchFunc(ctx, req)
	}
	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		embeddings[i] = &Embedding{Vector: localVector(text, c.dim), Dimension: c.dim}
	}
	return &BatchEmbeddingResponse{Embeddings: embeddings}, nil
}

func (c *countingEmbedder) Dimension() int   { return c.dim }
func (c *countingEmbedder) Provider() string { return "counting" }
func (c *countingEmbedder) Model() string    { return "counting-v1" }
func (c *countingEmbedder) Close() error     { return nil }

func newTestVectorCache(t *testing.T) *cache.Cache[[]float32] {
	t.Helper()
	backend, err := cache.NewMemoryBackend(100)
	require.NoError(t, err)
	return cache.New[[]float32](backend, cache.Options{
		Name:   "embeddings",
		TTL:    time.Hour,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func newTestQueryEmbedder(t *testing.T, provider Embedder, vectors *cache.Cache[[]float32]) *QueryEmbedder {
	t.Helper()
	return NewQueryEmbedder(provider, QueryEmbedderOptions{
		Cache:   vectors,
		Timeout: time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestQueryEmbedder_CachesWithinTTL(t *testing.T) {
	ctx := context.Background()
	provider := &countingEmbedder{dim: 8}
	vectors := newTestVectorCache(t)
	q := newTestQueryEmbedder(t, provider, vectors)

	first, err := q.Embed(ctx, "  revenue growth ")
	require.NoError(t, err)

	second, err := q.Embed(ctx, "revenue growth")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), provider.calls.Load(), "second embed must be served from cache")
	assert.Equal(t, int64(1), q.CacheStats().Hits)
}

func TestQueryEmbedder_BackToBackCallsHitCache(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		provider := &countingEmbedder{dim: 8}
		q := newTestQueryEmbedder(t, provider, newTestVectorCache(t))

		_, err := q.Embed(ctx, "quarterly revenue")
		require.NoError(t, err)
		_, err = q.Embed(ctx, "quarterly revenue")
		require.NoError(t, err)

		require.Equal(t, int32(1), provider.calls.Load(), "iteration %d", i)
	}
}

func TestQueryEmbedder_SendsSingleQueryItem(t *testing.T) {
	provider := &countingEmbedder{dim: 8}
	q := newTestQueryEmbedder(t, provider, nil)

	_, err := q.Embed(context.Background(), "\tpayroll policy\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"payroll policy"}, provider.lastReq.Texts)
	assert.Equal(t, InputTypeQuery, provider.lastReq.InputType)
}

func TestQueryEmbedder_NoCacheCallsEveryTime(t *testing.T) {
	provider := &countingEmbedder{dim: 8}
	q := newTestQueryEmbedder(t, provider, nil)

	for i := 0; i < 3; i++ {
		_, err := q.Embed(context.Background(), "same")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), provider.calls.Load())
}

func TestQueryEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		batch   func(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)
		wantErr error
		calls   int32
	}{
		{
			name:    "blank query",
			query:   "   ",
			wantErr: ErrEmptyText,
			calls:   0,
		},
		{
			name:  "provider error",
			query: "q",
			batch: func(context.Context, BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
				return nil, errors.New("503 service unavailable")
			},
			wantErr: ErrProviderFailed,
			calls:   1,
		},
		{
			name:  "no embeddings",
			query: "q",
			batch: func(context.Context, BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
				return &BatchEmbeddingResponse{}, nil
			},
			wantErr: ErrProviderFailed,
			calls:   1,
		},
		{
			name:  "empty vector",
			query: "q",
			batch: func(context.Context, BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
				return &BatchEmbeddingResponse{Embeddings: []*Embedding{{Vector: nil}}}, nil
			},
			wantErr: ErrProviderFailed,
			calls:   1,
		},
		{
			name:  "wrong dimension",
			query: "q",
			batch: func(context.Context, BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
				return &BatchEmbeddingResponse{Embeddings: []*Embedding{{Vector: []float32{1, 2, 3}}}}, nil
			},
			wantErr: ErrDimensionMismatch,
			calls:   1,
		},
		{
			name:  "timeout",
			query: "q",
			batch: func(ctx context.Context, _ BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			wantErr: context.DeadlineExceeded,
			calls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &countingEmbedder{dim: 8, batchFunc: tt.batch}
			vectors := newTestVectorCache(t)
			q := NewQueryEmbedder(provider, QueryEmbedderOptions{
				Cache:   vectors,
				Timeout: 20 * time.Millisecond,
				Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			})

			_, err := q.Embed(context.Background(), tt.query)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.calls, provider.calls.Load())

			// Failures are never cached
			vectors.Flush()
			_, ok := vectors.Get(context.Background(), q.CacheKey("q"))
			assert.False(t, ok)
		})
	}
}

func TestQueryEmbedder_IgnoresCachedVectorOfWrongDimension(t *testing.T) {
	ctx := context.Background()
	provider := &countingEmbedder{dim: 8}
	vectors := newTestVectorCache(t)
	q := newTestQueryEmbedder(t, provider, vectors)

	vectors.Set(ctx, q.CacheKey("stale"), []float32{1, 2}, 0)

	vector, err := q.Embed(ctx, "stale")
	require.NoError(t, err)
	assert.Len(t, vector, 8)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestQueryEmbedder_KeyIncludesModel(t *testing.T) {
	a := newTestQueryEmbedder(t, &countingEmbedder{dim: 8}, nil)
	local, err := NewLocalProvider(Config{Dimension: 8})
	require.NoError(t, err)
	b := newTestQueryEmbedder(t, local, nil)

	assert.NotEqual(t, a.CacheKey("q"), b.CacheKey("q"))
	assert.Equal(t, a.CacheKey("q"), a.CacheKey("q"))
}
