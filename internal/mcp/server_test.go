package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ragcontext-mcp/internal/cache"
	"github.com/dshills/ragcontext-mcp/internal/searcher"
	"github.com/dshills/ragcontext-mcp/internal/storage"
	"github.com/dshills/ragcontext-mcp/pkg/types"
)

type fakeSearcher struct {
	resp    *searcher.SearchResponse
	err     error
	lastReq searcher.SearchRequest
	called  bool
}

func (f *fakeSearcher) Search(_ context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error) {
	f.called = true
	f.lastReq = req
	return f.resp, f.err
}

func (f *fakeSearcher) CacheStats() cache.Stats {
	return cache.Stats{Hits: 3, Misses: 1}
}

type fakeStatus struct {
	status    *storage.Status
	err       error
	lastOwner string
}

func (f *fakeStatus) GetStatus(_ context.Context, ownerID string) (*storage.Status, error) {
	f.lastOwner = ownerID
	return f.status, f.err
}

func newTestServer(t *testing.T, srch *fakeSearcher, status *fakeStatus) *Server {
	t.Helper()
	s, err := NewServer(srch, status, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func callTool(args interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func TestRetrieveContext_Success(t *testing.T) {
	page := 3
	srch := &fakeSearcher{resp: &searcher.SearchResponse{
		RequestID: "req-1",
		Results: []types.FusedResult{{
			ScoredChunk: types.ScoredChunk{
				ID: "B", DocumentID: "d1", Content: "refunds within 30 days", Score: 0.66,
				Metadata: types.ChunkMetadata{Filename: "policy.pdf", PageNumber: &page},
			},
			VectorScore: 0.8, FullTextScore: 0.33, InVector: true, InFullText: true,
		}},
		Context: types.ContextWindow{
			DocumentContext: "[1] policy.pdf (p. 3)\nrefunds within 30 days",
			TotalTokens:     12,
			Sources:         []types.Source{{DocumentID: "d1", Filename: "policy.pdf", RelevanceScore: 0.66}},
		},
	}}
	s := newTestServer(t, srch, &fakeStatus{})

	result, err := s.handleRetrieveContext(context.Background(), callTool(map[string]interface{}{
		"query":              "refund window",
		"user_id":            "u1",
		"document_ids":       []interface{}{"d1", "d2"},
		"limit":              float64(5),
		"threshold":          0.2,
		"vector_weight":      0.5,
		"enable_rerank":      false,
		"rerank_top_n":       float64(3),
		"max_context_tokens": float64(800),
		"prioritize_recent":  true,
		"min_relevance":      0.4,
		"conversation_id":    "c1",
		"history": []interface{}{
			map[string]interface{}{"role": "user", "content": "hi"},
		},
		"use_cache": false,
	}))
	require.NoError(t, err)

	req := srch.lastReq
	assert.Equal(t, "refund window", req.Query)
	assert.Equal(t, types.Scope{UserID: "u1", DocumentIDs: []string{"d1", "d2"}}, req.Scope)
	assert.Equal(t, 5, req.Limit)
	require.NotNil(t, req.Threshold)
	assert.Equal(t, 0.2, *req.Threshold)
	require.NotNil(t, req.Weights)
	assert.Equal(t, 0.5, req.Weights.Vector)
	assert.Equal(t, 0.3, req.Weights.FullText)
	require.NotNil(t, req.EnableRerank)
	assert.False(t, *req.EnableRerank)
	assert.Equal(t, 3, req.RerankTopN)
	assert.Equal(t, 800, req.MaxContextTokens)
	assert.True(t, req.PrioritizeRecent)
	require.NotNil(t, req.MinRelevance)
	assert.Equal(t, 0.4, *req.MinRelevance)
	assert.Equal(t, "c1", req.ConversationID)
	assert.Equal(t, []types.Message{{Role: "user", Content: "hi"}}, req.History)
	assert.False(t, req.UseCache)

	var decoded searcher.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	assert.Equal(t, "req-1", decoded.RequestID)
	require.Len(t, decoded.Results, 1)
	assert.Equal(t, "B", decoded.Results[0].ID)
	assert.Equal(t, 3, *decoded.Results[0].Metadata.PageNumber)
	assert.Equal(t, srch.resp.Context, decoded.Context)
}

func TestRetrieveContext_Defaults(t *testing.T) {
	srch := &fakeSearcher{resp: &searcher.SearchResponse{}}
	s := newTestServer(t, srch, &fakeStatus{})

	_, err := s.handleRetrieveContext(context.Background(), callTool(map[string]interface{}{
		"query":   "q",
		"user_id": "u1",
	}))
	require.NoError(t, err)

	req := srch.lastReq
	assert.Equal(t, 0, req.Limit)
	assert.Nil(t, req.Threshold)
	assert.Nil(t, req.Weights)
	assert.Nil(t, req.EnableRerank)
	assert.Nil(t, req.MinRelevance)
	assert.True(t, req.UseCache)
	assert.Empty(t, req.Scope.DocumentIDs)
}

func TestRetrieveContext_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args interface{}
		code int
	}{
		{"not an object", "query", ErrorCodeInvalidParams},
		{"missing query", map[string]interface{}{"user_id": "u1"}, ErrorCodeEmptyQuery},
		{"empty query", map[string]interface{}{"query": "", "user_id": "u1"}, ErrorCodeEmptyQuery},
		{"missing user", map[string]interface{}{"query": "q"}, ErrorCodeInvalidParams},
		{"limit not a number", map[string]interface{}{"query": "q", "user_id": "u1", "limit": "ten"}, ErrorCodeInvalidParams},
		{"fractional limit", map[string]interface{}{"query": "q", "user_id": "u1", "limit": 2.5}, ErrorCodeInvalidParams},
		{"threshold not a number", map[string]interface{}{"query": "q", "user_id": "u1", "threshold": true}, ErrorCodeInvalidParams},
		{"document_ids not an array", map[string]interface{}{"query": "q", "user_id": "u1", "document_ids": "d1"}, ErrorCodeInvalidParams},
		{"document_ids wrong item", map[string]interface{}{"query": "q", "user_id": "u1", "document_ids": []interface{}{1.0}}, ErrorCodeInvalidParams},
		{"history not an array", map[string]interface{}{"query": "q", "user_id": "u1", "history": "hi"}, ErrorCodeInvalidParams},
		{"history wrong item", map[string]interface{}{"query": "q", "user_id": "u1", "history": []interface{}{"hi"}}, ErrorCodeInvalidParams},
		{"enable_rerank not a bool", map[string]interface{}{"query": "q", "user_id": "u1", "enable_rerank": "yes"}, ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srch := &fakeSearcher{resp: &searcher.SearchResponse{}}
			s := newTestServer(t, srch, &fakeStatus{})

			result, err := s.handleRetrieveContext(context.Background(), callTool(tt.args))
			assert.Nil(t, result)
			requireMCPError(t, err, tt.code)
			assert.False(t, srch.called)
		})
	}
}

func TestRetrieveContext_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		detail map[string]interface{}
	}{
		{
			name:   "validation",
			err:    types.NewValidationError("threshold", "must be within [0, 1]"),
			code:   ErrorCodeInvalidParams,
			detail: map[string]interface{}{"param": "threshold", "reason": "must be within [0, 1]"},
		},
		{
			name:   "fatal retrieval",
			err:    types.NewFatalRetrievalError(types.StageEmbed, errors.New("provider down")),
			code:   ErrorCodeRetrievalFailed,
			detail: map[string]interface{}{"stage": types.StageEmbed, "error": "provider down"},
		},
		{
			name:   "other",
			err:    context.DeadlineExceeded,
			code:   ErrorCodeInternalError,
			detail: map[string]interface{}{"error": context.DeadlineExceeded.Error()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeSearcher{err: tt.err}, &fakeStatus{})

			_, err := s.handleRetrieveContext(context.Background(), callTool(map[string]interface{}{
				"query": "q", "user_id": "u1",
			}))
			mcpErr := requireMCPError(t, err, tt.code)
			assert.Equal(t, tt.detail, mcpErr.Data)
		})
	}
}

func TestGetStatus(t *testing.T) {
	status := &fakeStatus{status: &storage.Status{
		Backend:         "sqlite",
		SchemaVersion:   "1.1.0",
		DocumentsCount:  2,
		ChunksCount:     7,
		EmbeddingsCount: 7,
		Dimensions:      []int{64},
		IndexSizeMB:     0.5,
		Health:          storage.HealthStatus{DatabaseAccessible: true, EmbeddingsAvailable: true, FTSIndexesBuilt: true},
	}}
	s := newTestServer(t, &fakeSearcher{}, status)

	result, err := s.handleGetStatus(context.Background(), callTool(map[string]interface{}{"user_id": "u1"}))
	require.NoError(t, err)
	assert.Equal(t, "u1", status.lastOwner)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	assert.Equal(t, "sqlite", decoded["backend"])
	assert.Equal(t, "u1", decoded["user_id"])

	stats := decoded["statistics"].(map[string]interface{})
	assert.Equal(t, float64(7), stats["chunks_count"])
	assert.Equal(t, "0.50", stats["index_size_mb"])

	searchCache := decoded["search_cache"].(map[string]interface{})
	assert.Equal(t, float64(3), searchCache["hits"])

	health := decoded["health"].(map[string]interface{})
	assert.Equal(t, true, health["fts_indexes_built"])
}

func TestGetStatus_NoArguments(t *testing.T) {
	status := &fakeStatus{status: &storage.Status{Backend: "sqlite"}}
	s := newTestServer(t, &fakeSearcher{}, status)

	result, err := s.handleGetStatus(context.Background(), callTool(nil))
	require.NoError(t, err)
	assert.Equal(t, "", status.lastOwner)
	assert.NotContains(t, resultText(t, result), "user_id")
}

func TestGetStatus_Error(t *testing.T) {
	s := newTestServer(t, &fakeSearcher{}, &fakeStatus{err: errors.New("database is locked")})

	_, err := s.handleGetStatus(context.Background(), callTool(map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInternalError)
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, &fakeStatus{}, nil)
	assert.Error(t, err)

	_, err = NewServer(&fakeSearcher{}, nil, nil)
	assert.Error(t, err)

	s, err := NewServer(&fakeSearcher{}, &fakeStatus{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, s.mcp)
}

func TestToolSchemas(t *testing.T) {
	retrieve := retrieveContextTool()
	assert.Equal(t, "retrieve_context", retrieve.Name)
	assert.ElementsMatch(t, []string{"query", "user_id"}, retrieve.InputSchema.Required)
	for _, key := range []string{"query", "user_id", "document_ids", "limit", "threshold", "vector_weight",
		"fulltext_weight", "enable_rerank", "rerank_top_n", "max_context_tokens", "prioritize_recent",
		"min_relevance", "conversation_id", "history", "use_cache"} {
		assert.Contains(t, retrieve.InputSchema.Properties, key)
	}

	status := getStatusTool()
	assert.Equal(t, "get_status", status.Name)
	assert.Empty(t, status.InputSchema.Required)
}
