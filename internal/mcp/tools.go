package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/ragcontext-mcp/internal/fusion"
	"github.com/dshills/ragcontext-mcp/internal/searcher"
	"github.com/dshills/ragcontext-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeRetrievalFailed = -32001 // A required pipeline stage failed
	ErrorCodeEmptyQuery      = -32004 // Query parameter is empty
)

// handleRetrieveContext handles the retrieve_context tool invocation
func (s *Server) handleRetrieveContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	req, err := parseSearchRequest(args)
	if err != nil {
		return nil, err
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, searchError(err)
	}

	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	userID := getStringDefault(args, "user_id", "")

	status, err := s.status.GetStatus(ctx, userID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cacheStats := s.searcher.CacheStats()
	response := map[string]interface{}{
		"backend":        status.Backend,
		"schema_version": status.SchemaVersion,
		"statistics": map[string]interface{}{
			"documents_count":  status.DocumentsCount,
			"chunks_count":     status.ChunksCount,
			"embeddings_count": status.EmbeddingsCount,
			"dimensions":       status.Dimensions,
			"messages_count":   status.MessagesCount,
			"cache_entries":    status.CacheEntries,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"search_cache": map[string]interface{}{
			"hits":   cacheStats.Hits,
			"misses": cacheStats.Misses,
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
		},
	}
	if userID != "" {
		response["user_id"] = userID
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// parseSearchRequest converts tool arguments into a SearchRequest. Semantic
// validation is left to the searcher; only types are checked here.
func parseSearchRequest(args map[string]interface{}) (searcher.SearchRequest, error) {
	var req searcher.SearchRequest

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return req, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	req.Query = query

	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return req, invalidParam("user_id", "missing or empty")
	}
	req.Scope = types.Scope{UserID: userID}

	if raw, present := args["document_ids"]; present {
		ids, err := getStringSlice(raw)
		if err != nil {
			return req, invalidParam("document_ids", err.Error())
		}
		req.Scope.DocumentIDs = ids
	}

	var err error
	if req.Limit, err = getInt(args, "limit", 0); err != nil {
		return req, err
	}
	if req.RerankTopN, err = getInt(args, "rerank_top_n", 0); err != nil {
		return req, err
	}
	if req.MaxContextTokens, err = getInt(args, "max_context_tokens", 0); err != nil {
		return req, err
	}

	if req.Threshold, err = getFloatPtr(args, "threshold"); err != nil {
		return req, err
	}
	if req.MinRelevance, err = getFloatPtr(args, "min_relevance"); err != nil {
		return req, err
	}

	vectorWeight, err := getFloatPtr(args, "vector_weight")
	if err != nil {
		return req, err
	}
	textWeight, err := getFloatPtr(args, "fulltext_weight")
	if err != nil {
		return req, err
	}
	if vectorWeight != nil || textWeight != nil {
		w := fusion.DefaultWeights()
		if vectorWeight != nil {
			w.Vector = *vectorWeight
		}
		if textWeight != nil {
			w.FullText = *textWeight
		}
		req.Weights = &w
	}

	if v, present := args["enable_rerank"]; present {
		b, ok := v.(bool)
		if !ok {
			return req, invalidParam("enable_rerank", "must be a boolean")
		}
		req.EnableRerank = &b
	}

	req.PrioritizeRecent = getBoolDefault(args, "prioritize_recent", false)
	req.UseCache = getBoolDefault(args, "use_cache", true)
	req.ConversationID = getStringDefault(args, "conversation_id", "")

	if raw, present := args["history"]; present {
		history, err := getHistory(raw)
		if err != nil {
			return req, invalidParam("history", err.Error())
		}
		req.History = history
	}

	return req, nil
}

// searchError maps pipeline errors onto MCP error codes
func searchError(err error) error {
	var validation *types.ValidationError
	if errors.As(err, &validation) {
		return newMCPError(ErrorCodeInvalidParams, validation.Error(), map[string]interface{}{
			"param":  validation.Field,
			"reason": validation.Reason,
		})
	}

	var fatal *types.FatalRetrievalError
	if errors.As(err, &fatal) {
		return newMCPError(ErrorCodeRetrievalFailed, "retrieval failed", map[string]interface{}{
			"stage": fatal.Stage,
			"error": fatal.Err.Error(),
		})
	}

	return newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func invalidParam(param, reason string) error {
	return newMCPError(ErrorCodeInvalidParams, "invalid "+param, map[string]interface{}{
		"param":  param,
		"reason": reason,
	})
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getInt extracts an integer parameter. JSON numbers arrive as float64.
func getInt(args map[string]interface{}, key string, defaultValue int) (int, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return defaultValue, nil
	}
	switch val := raw.(type) {
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return 0, invalidParam(key, "must be an integer")
		}
		return int(val), nil
	case int:
		return val, nil
	default:
		return 0, invalidParam(key, "must be an integer")
	}
}

// getFloatPtr extracts an optional number parameter
func getFloatPtr(args map[string]interface{}, key string) (*float64, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}
	switch val := raw.(type) {
	case float64:
		return &val, nil
	case int:
		f := float64(val)
		return &f, nil
	default:
		return nil, invalidParam(key, "must be a number")
	}
}

func getStringSlice(raw interface{}) ([]string, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("must be an array of strings")
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("item %d is not a string", i)
		}
		out = append(out, s)
	}
	return out, nil
}

func getHistory(raw interface{}) ([]types.Message, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("must be an array of messages")
	}
	history := make([]types.Message, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("message %d is not an object", i)
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		history = append(history, types.Message{Role: role, Content: content})
	}
	return history, nil
}
