// Package retriever shapes chunk-store search results for the pipeline.
//
// VectorRetriever delegates nearest-neighbor computation to a VectorStore and
// re-enforces the caller's scope and similarity threshold on what comes back.
// FullTextRetriever sanitizes the query first; a query with no searchable
// terms returns an empty list without a store call.
//
// Both retrievers bound every store call with their own timeout and return
// results sorted by score descending, truncated to the requested limit.
package retriever
