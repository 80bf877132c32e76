package reranker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

// stubClient implements Client
type stubClient struct {
	scores   []Score
	err      error
	delay    time.Duration
	lastDocs []Document
	lastTopN int
}

func (s *stubClient) Rerank(ctx context.Context, _ string, documents []Document, topN int) ([]Score, error) {
	s.lastDocs = documents
	s.lastTopN = topN
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.scores, s.err
}

func (s *stubClient) ModelName() string { return "stub" }

func fused(id string, score float64) types.FusedResult {
	return types.FusedResult{
		ScoredChunk: types.ScoredChunk{
			ID: id, DocumentID: "doc-" + id, Content: "content " + id, Score: score,
			Metadata: types.ChunkMetadata{Filename: id + ".pdf"},
		},
		VectorScore: score,
		InVector:    true,
	}
}

func quietOptions() Options {
	return Options{Timeout: 50 * time.Millisecond, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestRerank_ReordersByRelevance(t *testing.T) {
	client := &stubClient{scores: []Score{{Index: 0, RelevanceScore: 0.40}, {Index: 1, RelevanceScore: 0.95}}}
	r := New(client, quietOptions())
	input := []types.FusedResult{fused("X", 0.7), fused("Y", 0.5)}

	got, applied := r.Rerank(context.Background(), "q", input, 2)

	require.True(t, applied)
	require.Len(t, got, 2)
	assert.Equal(t, "Y", got[0].ID)
	assert.Equal(t, 0.95, got[0].Score)
	assert.Equal(t, "X", got[1].ID)
	assert.Equal(t, 0.40, got[1].Score)
	assert.True(t, got[0].Reranked)
	assert.Equal(t, 0.5, got[0].VectorScore, "stage scores are kept")

	// Input is untouched
	assert.Equal(t, 0.7, input[0].Score)
	assert.False(t, input[0].Reranked)

	require.Len(t, client.lastDocs, 2)
	assert.Equal(t, Document{Text: "content X", DocumentID: "doc-X", Filename: "X.pdf"}, client.lastDocs[0])
	assert.Equal(t, 2, client.lastTopN)
}

func TestRerank_FallbackReturnsInputUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		client *stubClient
	}{
		{name: "call error", client: &stubClient{err: errors.New("connection refused")}},
		{name: "timeout", client: &stubClient{delay: time.Second, scores: []Score{{Index: 0, RelevanceScore: 1}}}},
		{name: "empty response", client: &stubClient{scores: []Score{}}},
		{name: "only unmappable indexes", client: &stubClient{scores: []Score{{Index: 7, RelevanceScore: 1}, {Index: -1, RelevanceScore: 0.5}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.client, quietOptions())
			input := []types.FusedResult{fused("A", 0.9), fused("B", 0.4), fused("C", 0.1)}
			snapshot := append([]types.FusedResult(nil), input...)

			start := time.Now()
			got, applied := r.Rerank(context.Background(), "q", input, 3)

			assert.False(t, applied)
			assert.Equal(t, snapshot, got)
			assert.Less(t, time.Since(start), 500*time.Millisecond, "rerank must not stall past its timeout")
		})
	}
}

func TestRerank_DropsUnmappableEntries(t *testing.T) {
	client := &stubClient{scores: []Score{
		{Index: 2, RelevanceScore: 0.8},
		{Index: 9, RelevanceScore: 0.99},
		{Index: 2, RelevanceScore: 0.1},
		{Index: 0, RelevanceScore: 0.3},
	}}
	r := New(client, quietOptions())

	got, applied := r.Rerank(context.Background(), "q", []types.FusedResult{fused("A", 1), fused("B", 1), fused("C", 1)}, 3)

	require.True(t, applied)
	ids := []string{}
	for _, g := range got {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"C", "A"}, ids)
	assert.Equal(t, 0.8, got[0].Score)
}

func TestRerank_EmptyAndNil(t *testing.T) {
	client := &stubClient{}
	r := New(client, quietOptions())

	got, applied := r.Rerank(context.Background(), "q", nil, 5)
	assert.Nil(t, got)
	assert.False(t, applied)
	assert.Nil(t, client.lastDocs, "no call for empty input")

	var nilReranker *Reranker
	input := []types.FusedResult{fused("A", 1)}
	got, applied = nilReranker.Rerank(context.Background(), "q", input, 5)
	assert.Equal(t, input, got)
	assert.False(t, applied)
}

func TestRerank_DefaultTopN(t *testing.T) {
	client := &stubClient{scores: []Score{{Index: 0, RelevanceScore: 1}}}
	r := New(client, quietOptions())
	_, _ = r.Rerank(context.Background(), "q", []types.FusedResult{fused("A", 1), fused("B", 1)}, 0)
	assert.Equal(t, 2, client.lastTopN)
}
