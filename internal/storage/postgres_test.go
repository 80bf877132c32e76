package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

// setupPostgres connects to the database named by RAGCTX_TEST_POSTGRES_DSN.
// The database must have the pgvector extension available.
func setupPostgres(t *testing.T) *PostgresStorage {
	t.Helper()
	dsn := os.Getenv("RAGCTX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RAGCTX_TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgresStorage(context.Background(), PostgresConfig{DSN: dsn, Dimension: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewPostgresStorage_Validation(t *testing.T) {
	_, err := NewPostgresStorage(context.Background(), PostgresConfig{})
	assert.Error(t, err)
	_, err = NewPostgresStorage(context.Background(), PostgresConfig{DSN: "postgres://localhost/x"})
	assert.Error(t, err)
}

func TestPostgresStorage_Search(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	// Unique ids keep runs against a shared database independent
	owner := "u-" + uuid.NewString()
	docID := "d-" + uuid.NewString()
	t.Cleanup(func() { _ = s.DeleteDocument(context.Background(), docID) })

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertDocument(ctx, &Document{ID: docID, OwnerID: owner, Filename: "policy.pdf", Tags: []string{"hr"}}))
	contents := []string{"refund policy details", "shipping information"}
	vectors := [][]float32{{1, 0}, {0, 1}}
	for i, content := range contents {
		id := docID + "-" + uuid.NewString()
		require.NoError(t, tx.UpsertChunk(ctx, &Chunk{ID: id, DocumentID: docID, Content: content, ChunkIndex: i, PageNumber: page(i + 1)}))
		require.NoError(t, tx.UpsertEmbedding(ctx, &Embedding{ChunkID: id, Vector: vectors[i], Provider: "local", Model: "m"}))
	}
	require.NoError(t, tx.Commit())

	scope := types.Scope{UserID: owner}

	results, err := s.SearchVector(ctx, []float32{1, 0}, scope, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "refund policy details", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, []string{"hr"}, results[0].Tags)

	text, err := s.SearchText(ctx, "shipping", scope, 10)
	require.NoError(t, err)
	require.Len(t, text, 1)
	assert.Greater(t, text[0].Score, 0.0)

	empty, err := s.SearchText(ctx, "refund", types.Scope{UserID: owner, DocumentIDs: []string{"other"}}, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = s.SearchVector(ctx, []float32{1, 0, 0}, scope, 10, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestPostgresStorage_Messages(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	convID := "conv-" + uuid.NewString()
	require.NoError(t, s.CreateConversation(ctx, &Conversation{ID: convID, OwnerID: "u"}))
	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, s.AppendMessage(ctx, &Message{ConversationID: convID, Role: "user", Content: content}))
	}

	msgs, err := s.ListMessages(ctx, convID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)

	all, err := s.ListMessages(ctx, convID, -1)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
