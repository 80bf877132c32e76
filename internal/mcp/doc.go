// Package mcp implements the Model Context Protocol (MCP) server for ragcontext.
//
// The server exposes two tools to MCP clients:
//   - retrieve_context: run hybrid retrieval and return ranked fragments plus
//     an assembled, token-bounded context window
//   - get_status: report chunk store statistics and health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr; stdout carries only protocol messages.
//
// # Basic Usage
//
//	ragcontext serve --config ~/.ragcontext/config.yaml
//
// # Tool: retrieve_context
//
//	Request:
//	{
//	  "name": "retrieve_context",
//	  "arguments": {
//	    "query": "what is the refund window?",
//	    "user_id": "user-1",
//	    "document_ids": ["handbook"],
//	    "limit": 5,
//	    "max_context_tokens": 1500,
//	    "history": [{"role": "user", "content": "I bought a plan last week"}]
//	  }
//	}
//
//	Response:
//	{
//	  "request_id": "0b5f...",
//	  "results": [
//	    {
//	      "id": "handbook-3",
//	      "document_id": "handbook",
//	      "content": "Refunds are issued within thirty days...",
//	      "score": 0.66,
//	      "metadata": {"filename": "handbook.pdf", "page_number": 4, "chunk_index": 3},
//	      "vector_score": 0.8,
//	      "fulltext_score": 0.33,
//	      "in_vector": true,
//	      "in_fulltext": true
//	    }
//	  ],
//	  "context": {
//	    "document_context": "[1] handbook.pdf (p. 4)\nRefunds are issued...",
//	    "conversation_context": "user: I bought a plan last week",
//	    "total_tokens": 41,
//	    "was_truncated": false,
//	    "sources": [{"document_id": "handbook", "filename": "handbook.pdf", "relevance_score": 0.66}]
//	  },
//	  "timing": {"embed_ms": 35, "retrieve_ms": 52, "rerank_ms": 0, "assemble_ms": 0, "total_ms": 53},
//	  "cache_hit": false,
//	  "reranked": false,
//	  "vector_results": 10,
//	  "text_results": 4
//	}
//
// # Tool: get_status
//
//	Request:
//	{
//	  "name": "get_status",
//	  "arguments": {"user_id": "user-1"}
//	}
//
// The response lists document, chunk, embedding and message counts, stored
// embedding dimensions, search cache hit counts and store health.
//
// # Error Codes
//
//   - -32602: Invalid params (bad argument types, out-of-range values)
//   - -32603: Internal error
//   - -32001: A required retrieval stage failed; data.stage names it
//   - -32004: Empty query
package mcp
