package storage

import (
	"context"
	"time"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

// Storage defines the chunk store consumed by retrieval and written by ingest
type Storage interface {
	Writer

	// Document operations
	GetDocument(ctx context.Context, documentID string) (*Document, error)
	DeleteDocument(ctx context.Context, documentID string) error

	// Chunk operations
	GetChunk(ctx context.Context, chunkID string) (*Chunk, error)
	ListChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error)

	// Embedding operations
	GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error)

	// Search operations
	SearchVector(ctx context.Context, vector []float32, scope types.Scope, limit int, threshold float64) ([]types.ScoredChunk, error)
	SearchText(ctx context.Context, query string, scope types.Scope, limit int) ([]types.ScoredChunk, error)

	// Conversation operations
	CreateConversation(ctx context.Context, conversation *Conversation) error
	AppendMessage(ctx context.Context, message *Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]types.Message, error)

	// Status operations
	GetStatus(ctx context.Context, ownerID string) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Writer holds the ingest-side write operations
type Writer interface {
	UpsertDocument(ctx context.Context, document *Document) error
	UpsertChunk(ctx context.Context, chunk *Chunk) error
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
}

// Tx represents a database transaction
type Tx interface {
	Writer
	Commit() error
	Rollback() error
}

// Document is an uploaded source owned by one user
type Document struct {
	ID           string
	OwnerID      string
	Filename     string
	DocumentType string
	Tags         []string
	CreatedAt    time.Time
}

// Chunk is a contiguous slice of a document's extracted text
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	PageNumber *int // Nullable
	ChunkIndex int
	CreatedAt  time.Time
}

// Embedding is the vector for one chunk
type Embedding struct {
	ChunkID   string
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// Conversation groups messages for history lookup
type Conversation struct {
	ID        string
	OwnerID   string
	Title     string
	CreatedAt time.Time
}

// Message is one stored conversation turn
type Message struct {
	ID             int64
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Status contains statistics about the chunk store
type Status struct {
	Backend         string
	SchemaVersion   string
	DocumentsCount  int
	ChunksCount     int
	EmbeddingsCount int
	Dimensions      []int
	MessagesCount   int
	CacheEntries    int
	IndexSizeMB     float64
	Health          HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}
