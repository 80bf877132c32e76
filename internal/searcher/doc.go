// Package searcher runs the retrieval pipeline behind retrieve_context.
//
// A request flows through these stages:
//
//  1. Validate the request and apply defaults. Nothing external is called for
//     an invalid request.
//  2. Load conversation history when a conversation ID is given.
//  3. Look up the response cache.
//  4. Embed the query and run full-text search concurrently, then run vector
//     search with the embedding.
//  5. Fuse both lists by weighted score (0.7 vector, 0.3 full-text).
//  6. Optionally rerank the fused list with an external relevance model.
//  7. Assemble the context window from the final ranking and the history.
//
// # Basic Usage
//
//	s, err := searcher.New(searcher.Dependencies{
//	    Embedder:  queryEmbedder,
//	    Vector:    retriever.NewVectorRetriever(store, retriever.Options{}),
//	    FullText:  retriever.NewFullTextRetriever(store, retriever.Options{}),
//	    Reranker:  reranker.New(client, reranker.Options{}),
//	    Assembler: asm,
//	    History:   store,
//	    Cache:     searchCache,
//	}, searcher.DefaultOptions())
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "what is the refund window?",
//	    Scope: types.Scope{UserID: "user-1"},
//	    Limit: 10,
//	})
//	fmt.Println(resp.Context.DocumentContext)
//
// # Failure Handling
//
// The embedding call and the two retrievers are required: an embedding
// failure, or both retrievers failing, returns a *types.FatalRetrievalError
// naming the stage. A single retriever failing is logged and the pipeline
// continues with the other list. Reranker and cache failures never fail a
// request; the fused order and a cache miss are used instead.
//
// # Caching
//
// With UseCache set, complete responses are cached for five minutes under a
// key built from the query, scope, every tunable parameter and the history.
// InvalidateCache makes previously cached responses unreachable.
package searcher
