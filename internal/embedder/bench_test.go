package embedder

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dshills/ragcontext-mcp/internal/cache"
)

func BenchmarkComputeHash(b *testing.B) {
	text := "Quarterly revenue grew 12% year over year, driven by subscription renewals."
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ComputeHash(text)
	}
}

func BenchmarkLocalProvider(b *testing.B) {
	provider, _ := NewLocalProvider(Config{})
	ctx := context.Background()
	req := EmbeddingRequest{Text: "what is the refund policy"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := provider.GenerateEmbedding(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkQueryEmbedderCached(b *testing.B) {
	provider, _ := NewLocalProvider(Config{})
	backend, _ := cache.NewMemoryBackend(100)
	vectors := cache.New[[]float32](backend, cache.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	q := NewQueryEmbedder(provider, QueryEmbedderOptions{Cache: vectors})
	ctx := context.Background()

	if _, err := q.Embed(ctx, "warm"); err != nil {
		b.Fatal(err)
	}
	vectors.Flush()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := q.Embed(ctx, "warm"); err != nil {
			b.Fatal(err)
		}
	}
}
