package searcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/dshills/ragcontext-mcp/internal/assembler"
	"github.com/dshills/ragcontext-mcp/internal/cache"
	"github.com/dshills/ragcontext-mcp/internal/embedder"
	"github.com/dshills/ragcontext-mcp/internal/retriever"
	"github.com/dshills/ragcontext-mcp/internal/storage"
	"github.com/dshills/ragcontext-mcp/pkg/types"
)

var benchTopics = []string{
	"refund policy for annual subscriptions",
	"quarterly revenue grew in the enterprise segment",
	"employees accrue paid leave monthly",
	"data retention period for customer invoices",
	"incident response escalation contacts",
}

// setupSearchBenchmark indexes documents into an in-memory store with the
// deterministic local embedder
func setupSearchBenchmark(b *testing.B, withCache bool) (*storage.SQLiteStorage, *Searcher) {
	b.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		b.Fatal(err)
	}

	provider, err := embedder.NewLocalProvider(embedder.Config{Dimension: 128})
	if err != nil {
		b.Fatal(err)
	}

	for d := 0; d < 20; d++ {
		docID := fmt.Sprintf("doc-%02d", d)
		if err := store.UpsertDocument(ctx, &storage.Document{
			ID: docID, OwnerID: "bench", Filename: docID + ".pdf", DocumentType: "pdf",
		}); err != nil {
			b.Fatal(err)
		}
		for c := 0; c < 25; c++ {
			chunkID := fmt.Sprintf("%s-%02d", docID, c)
			content := fmt.Sprintf("%s section %d of %s", benchTopics[(d+c)%len(benchTopics)], c, docID)
			if err := store.UpsertChunk(ctx, &storage.Chunk{ID: chunkID, DocumentID: docID, Content: content, ChunkIndex: c}); err != nil {
				b.Fatal(err)
			}
			emb, err := provider.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: content, InputType: embedder.InputTypeDocument})
			if err != nil {
				b.Fatal(err)
			}
			if err := store.UpsertEmbedding(ctx, &storage.Embedding{
				ChunkID: chunkID, Vector: emb.Vector, Dimension: emb.Dimension, Provider: emb.Provider, Model: emb.Model,
			}); err != nil {
				b.Fatal(err)
			}
		}
	}

	var searchCache *cache.Cache[SearchResponse]
	if withCache {
		backend, err := cache.NewMemoryBackend(1000)
		if err != nil {
			b.Fatal(err)
		}
		searchCache = cache.New[SearchResponse](backend, cache.Options{Name: "search", Logger: logger})
	}

	asm, err := assembler.New(assembler.DefaultConfig(), logger)
	if err != nil {
		b.Fatal(err)
	}

	opts := DefaultOptions()
	opts.Threshold = 0
	srch, err := New(Dependencies{
		Embedder:  embedder.NewQueryEmbedder(provider, embedder.QueryEmbedderOptions{Logger: logger}),
		Vector:    retriever.NewVectorRetriever(store, retriever.Options{Logger: logger}),
		FullText:  retriever.NewFullTextRetriever(store, retriever.Options{Logger: logger}),
		Assembler: asm,
		History:   store,
		Cache:     searchCache,
		Logger:    logger,
	}, opts)
	if err != nil {
		b.Fatal(err)
	}

	return store, srch
}

// BenchmarkSearch benchmarks the full pipeline without the response cache
func BenchmarkSearch(b *testing.B) {
	store, srch := setupSearchBenchmark(b, false)
	defer store.Close()

	req := SearchRequest{
		Query: "refund policy subscriptions",
		Scope: types.Scope{UserID: "bench"},
		Limit: 10,
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := srch.Search(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearchCached benchmarks repeated identical requests served from cache
func BenchmarkSearchCached(b *testing.B) {
	store, srch := setupSearchBenchmark(b, true)
	defer store.Close()

	req := SearchRequest{
		Query:    "quarterly revenue enterprise",
		Scope:    types.Scope{UserID: "bench"},
		Limit:    10,
		UseCache: true,
	}
	if _, err := srch.Search(context.Background(), req); err != nil {
		b.Fatal(err)
	}
	srch.Flush()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := srch.Search(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearchLimits benchmarks different result limits
func BenchmarkSearchLimits(b *testing.B) {
	store, srch := setupSearchBenchmark(b, false)
	defer store.Close()

	for _, limit := range []int{5, 10, 50, 100} {
		b.Run(fmt.Sprintf("limit_%d", limit), func(b *testing.B) {
			req := SearchRequest{
				Query: "data retention invoices",
				Scope: types.Scope{UserID: "bench"},
				Limit: limit,
			}
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := srch.Search(context.Background(), req); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkConcurrentSearch benchmarks parallel requests against one Searcher
func BenchmarkConcurrentSearch(b *testing.B) {
	store, srch := setupSearchBenchmark(b, false)
	defer store.Close()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			req := SearchRequest{
				Query: benchTopics[i%len(benchTopics)],
				Scope: types.Scope{UserID: "bench"},
				Limit: 10,
			}
			if _, err := srch.Search(context.Background(), req); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
