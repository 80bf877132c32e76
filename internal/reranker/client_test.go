package reranker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPConfig{
		BaseURL: server.URL + "/",
		APIKey:  "secret",
		Model:   "bge-reranker",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return client
}

func TestHTTPClient_Rerank(t *testing.T) {
	var got rerankRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"bge-reranker","results":[{"index":1,"relevance_score":0.95},{"index":0,"relevance_score":0.4}]}`))
	})

	scores, err := client.Rerank(context.Background(), "refund policy", []Document{
		{Text: "first", DocumentID: "d1", Filename: "a.pdf"},
		{Text: "second"},
	}, 2)
	require.NoError(t, err)

	assert.Equal(t, []Score{{Index: 1, RelevanceScore: 0.95}, {Index: 0, RelevanceScore: 0.4}}, scores)
	assert.Equal(t, "refund policy", got.Query)
	assert.Equal(t, "bge-reranker", got.Model)
	assert.Equal(t, 2, got.TopN)
	require.Len(t, got.Documents, 2)
	assert.Equal(t, "first", got.Documents[0].Text)
	assert.Equal(t, "a.pdf", got.Documents[0].Metadata["filename"])
	assert.Nil(t, got.Documents[1].Metadata)
	assert.Equal(t, "bge-reranker", client.ModelName())
}

func TestHTTPClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`},
		{name: "malformed json", status: http.StatusOK, body: `{"results": [`},
		{name: "empty results", status: http.StatusOK, body: `{"results": []}`},
		{name: "missing score", status: http.StatusOK, body: `{"results": [{"index": 0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Rerank(context.Background(), "q", []Document{{Text: "a"}}, 1)
			assert.Error(t, err)
		})
	}
}

func TestHTTPClient_NoDocumentsSkipsCall(t *testing.T) {
	called := false
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) { called = true })
	scores, err := client.Rerank(context.Background(), "q", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.False(t, called)
}

func TestNewHTTPClient_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient(HTTPConfig{})
	assert.Error(t, err)
}
