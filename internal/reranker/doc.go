// Package reranker reorders fused results with an external relevance model.
//
// Reranking is optional. Any failure of the call (error, timeout, empty or
// malformed response, no result that maps back to a candidate) is logged as a
// warning and the input slice is returned unchanged, in its original order.
// Individual results whose index is out of range or repeated are dropped.
//
// HTTPClient speaks the common POST /v1/rerank shape:
//
//	{"model": "...", "query": "...", "documents": [{"text": "..."}], "top_n": 5}
//	-> {"results": [{"index": 1, "relevance_score": 0.95}], "model": "..."}
package reranker
