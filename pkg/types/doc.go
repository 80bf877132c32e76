// Package types provides shared type definitions for the ragcontext MCP server.
//
// This package defines the request-scoped values that flow through the
// retrieval pipeline: scored chunks, fused results, context windows and the
// error taxonomy used to report pipeline failures.
//
// # Core Types
//
// ScoredChunk is a document fragment returned by one pipeline stage:
//
//	chunk := types.ScoredChunk{
//	    ID:         "c-42",
//	    DocumentID: "d-7",
//	    Content:    "Quarterly revenue grew 12%...",
//	    Score:      0.83,
//	    Metadata:   types.ChunkMetadata{Filename: "q3-report.pdf", ChunkIndex: 4},
//	}
//
// FusedResult wraps a ScoredChunk with the per-stage scores that produced its
// fused weight. A fused result set is unique by chunk ID.
//
// ContextWindow is the bounded bundle handed to answer generation:
//
//	window.DocumentContext     // numbered, cited evidence
//	window.ConversationContext // "role: content" lines, oldest first
//	window.TotalTokens         // never above the requested budget
//	window.Sources             // one entry per included chunk
//
// # Errors
//
// FatalRetrievalError carries the failing stage and the underlying cause:
//
//	var fatal *types.FatalRetrievalError
//	if errors.As(err, &fatal) {
//	    log.Printf("stage %s failed: %v", fatal.Stage, fatal.Err)
//	}
//
// ValidationError rejects malformed requests before any external call and
// matches types.ErrValidation:
//
//	if errors.Is(err, types.ErrValidation) {
//	    // bad request
//	}
package types
