package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/ragcontext-mcp/internal/searcher"
)

// retrieveContextTool returns the tool definition for retrieve_context
func retrieveContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "retrieve_context",
		Description: "Retrieve the most relevant document fragments for a question and assemble them, with recent conversation, into a token-bounded context window",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language question or keywords",
					"maxLength":   searcher.MaxQueryLength,
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "Owner whose documents may be searched",
				},
				"document_ids": map[string]interface{}{
					"type":        "array",
					"description": "Optional allow-list of document IDs",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (values above 100 are clamped)",
					"default":     searcher.DefaultLimit,
					"minimum":     0,
				},
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum vector similarity for vector candidates (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"vector_weight": map[string]interface{}{
					"type":        "number",
					"description": "Fusion weight of the vector score",
					"default":     0.7,
					"minimum":     0.0,
				},
				"fulltext_weight": map[string]interface{}{
					"type":        "number",
					"description": "Fusion weight of the full-text score",
					"default":     0.3,
					"minimum":     0.0,
				},
				"enable_rerank": map[string]interface{}{
					"type":        "boolean",
					"description": "Rerank fused results with the relevance model when one is configured",
				},
				"rerank_top_n": map[string]interface{}{
					"type":        "integer",
					"description": "Number of results the reranker returns (defaults to limit)",
					"minimum":     0,
				},
				"max_context_tokens": map[string]interface{}{
					"type":        "integer",
					"description": "Token budget of the assembled context window",
					"default":     searcher.DefaultMaxContextTokens,
					"minimum":     0,
				},
				"prioritize_recent": map[string]interface{}{
					"type":        "boolean",
					"description": "Keep only the most recent conversation messages",
					"default":     false,
				},
				"min_relevance": map[string]interface{}{
					"type":        "number",
					"description": "Relevance floor for chunks included in the context window",
				},
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Load history of this stored conversation",
				},
				"history": map[string]interface{}{
					"type":        "array",
					"description": "Conversation history, oldest first. Takes precedence over conversation_id.",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"role":    map[string]interface{}{"type": "string"},
							"content": map[string]interface{}{"type": "string"},
						},
						"required": []string{"role", "content"},
					},
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "Serve and store the response in the response cache",
					"default":     true,
				},
			},
			Required: []string{"query", "user_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report chunk store statistics and health, optionally for one user",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "Restrict document counts to this owner",
				},
			},
		},
	}
}
