// Package embedder generates vector embeddings for queries and document chunks.
//
// The embedder supports multiple embedding providers (Jina AI, any
// OpenAI-compatible server, a local deterministic model) with batching,
// retry and request pacing.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "openai", Model: "text-embedding-3-small"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts:     []string{chunk1, chunk2},
//	    InputType: embedder.InputTypeDocument,
//	})
//
// # Query Embedding
//
// QueryEmbedder is the retrieval-time entry point. It trims the query, keys
// the cache on provider, model, input type and text, and calls the provider
// with a single-item batch under its own timeout:
//
//	q := embedder.NewQueryEmbedder(emb, embedder.QueryEmbedderOptions{
//	    Cache:   vectors, // *cache.Cache[[]float32], may be nil
//	    TTL:     24 * time.Hour,
//	    Timeout: 10 * time.Second,
//	})
//	vector, err := q.Embed(ctx, "what changed in Q3 revenue?")
//
// A vector whose dimension differs from the provider's is an error
// (ErrDimensionMismatch); a cached vector of the wrong dimension is ignored.
//
// # Provider Selection
//
// An empty Config.Provider is resolved by DetectProvider:
//
//  1. If Config.BaseURL is set → OpenAI-compatible server
//  2. Else if JINA_API_KEY is set → Jina AI
//  3. Else if OPENAI_API_KEY is set → OpenAI
//  4. Else → local provider (offline mode)
//
// # Input Types
//
// Jina models are asymmetric: queries are sent with task "retrieval.query"
// and documents with "retrieval.passage". OpenAI models ignore the input type.
//
// # Error Handling
//
// Transient failures are retried with exponential backoff (3 attempts,
// 100ms doubling to at most 5s):
//
//	_, err := q.Embed(ctx, query)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // no vector could be produced
//	}
package embedder
