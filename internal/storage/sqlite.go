package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch is returned when a query vector and stored vectors differ in length
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrInvalidEntity is returned when a write is missing required fields
	ErrInvalidEntity = errors.New("invalid entity")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// DB exposes the underlying handle, shared with the SQL cache backend
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) UpsertDocument(ctx context.Context, document *Document) error {
	return t.storage.upsertDocumentWithQuerier(ctx, t.tx, document)
}

func (t *sqliteTx) UpsertChunk(ctx context.Context, chunk *Chunk) error {
	return t.storage.upsertChunkWithQuerier(ctx, t.tx, chunk)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.tx, embedding)
}

// Document operations

func (s *SQLiteStorage) upsertDocumentWithQuerier(ctx context.Context, q querier, document *Document) error {
	if document.ID == "" || document.OwnerID == "" {
		return fmt.Errorf("%w: document requires id and owner", ErrInvalidEntity)
	}
	tags, err := encodeTags(document.Tags)
	if err != nil {
		return err
	}
	if document.CreatedAt.IsZero() {
		document.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO documents (id, owner_id, filename, document_type, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			filename = excluded.filename,
			document_type = excluded.document_type,
			tags = excluded.tags
	`
	_, err = q.ExecContext(ctx, query,
		document.ID, document.OwnerID, document.Filename,
		nullString(document.DocumentType), tags, document.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertDocument(ctx context.Context, document *Document) error {
	return s.upsertDocumentWithQuerier(ctx, s.db, document)
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	query := `
		SELECT id, owner_id, filename, document_type, tags, created_at
		FROM documents
		WHERE id = ?
	`
	var doc Document
	var docType sql.NullString
	var tags string
	err := s.db.QueryRowContext(ctx, query, documentID).Scan(
		&doc.ID, &doc.OwnerID, &doc.Filename, &docType, &tags, &doc.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.DocumentType = docType.String
	if doc.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes a document; chunks and embeddings cascade
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, documentID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Chunk operations

func (s *SQLiteStorage) upsertChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	if chunk.ID == "" || chunk.DocumentID == "" {
		return fmt.Errorf("%w: chunk requires id and document id", ErrInvalidEntity)
	}
	if strings.TrimSpace(chunk.Content) == "" {
		return fmt.Errorf("%w: chunk %s has no content", ErrInvalidEntity, chunk.ID)
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}

	// ON CONFLICT DO UPDATE keeps the rowid, so the FTS update trigger stays in sync
	query := `
		INSERT INTO chunks (id, document_id, content, page_number, chunk_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			content = excluded.content,
			page_number = excluded.page_number,
			chunk_index = excluded.chunk_index
	`
	_, err := q.ExecContext(ctx, query,
		chunk.ID, chunk.DocumentID, chunk.Content,
		nullInt(chunk.PageNumber), chunk.ChunkIndex, chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertChunk(ctx context.Context, chunk *Chunk) error {
	return s.upsertChunkWithQuerier(ctx, s.db, chunk)
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	query := `
		SELECT id, document_id, content, page_number, chunk_index, created_at
		FROM chunks
		WHERE id = ?
	`
	chunk, err := scanChunk(s.db.QueryRowContext(ctx, query, chunkID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return chunk, err
}

func (s *SQLiteStorage) ListChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	query := `
		SELECT id, document_id, content, page_number, chunk_index, created_at
		FROM chunks
		WHERE document_id = ?
		ORDER BY chunk_index
	`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var chunk Chunk
	var page sql.NullInt64
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &page,
		&chunk.ChunkIndex, &chunk.CreatedAt); err != nil {
		return nil, err
	}
	chunk.PageNumber = intPtr(page)
	return &chunk, nil
}

// Embedding operations

func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	if embedding.ChunkID == "" || len(embedding.Vector) == 0 {
		return fmt.Errorf("%w: embedding requires chunk id and vector", ErrInvalidEntity)
	}
	embedding.Dimension = len(embedding.Vector)
	if embedding.CreatedAt.IsZero() {
		embedding.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
	`
	_, err := q.ExecContext(ctx, query,
		embedding.ChunkID, serializeVector(embedding.Vector), embedding.Dimension,
		embedding.Provider, embedding.Model, embedding.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.db, embedding)
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	query := `
		SELECT chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var emb Embedding
	var blob []byte
	err := s.db.QueryRowContext(ctx, query, chunkID).Scan(
		&emb.ChunkID, &blob, &emb.Dimension, &emb.Provider, &emb.Model, &emb.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	emb.Vector = deserializeVector(blob)
	return &emb, nil
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, vector []float32, scope types.Scope, limit int, threshold float64) ([]types.ScoredChunk, error) {
	return searchVector(ctx, s.db, vector, scope, limit, threshold)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, query string, scope types.Scope, limit int) ([]types.ScoredChunk, error) {
	return searchText(ctx, s.db, query, scope, limit)
}

// Conversation operations

func (s *SQLiteStorage) CreateConversation(ctx context.Context, conversation *Conversation) error {
	if conversation.ID == "" || conversation.OwnerID == "" {
		return fmt.Errorf("%w: conversation requires id and owner", ErrInvalidEntity)
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, title, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title
	`, conversation.ID, conversation.OwnerID, nullString(conversation.Title), conversation.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) AppendMessage(ctx context.Context, message *Message) error {
	if message.ConversationID == "" || message.Role == "" {
		return fmt.Errorf("%w: message requires conversation id and role", ErrInvalidEntity)
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, message.ConversationID, message.Role, message.Content, message.CreatedAt).Scan(&message.ID)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListMessages returns the last limit messages of a conversation in chronological
// order. A negative limit returns the whole conversation.
func (s *SQLiteStorage) ListMessages(ctx context.Context, conversationID string, limit int) ([]types.Message, error) {
	if limit == 0 {
		return []types.Message{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]types.Message, 0)
	for rows.Next() {
		var m types.Message
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

func reverseMessages(messages []types.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

// Status operations

// GetStatus reports store statistics; an empty ownerID counts every owner
func (s *SQLiteStorage) GetStatus(ctx context.Context, ownerID string) (*Status, error) {
	status := &Status{Backend: "sqlite", Dimensions: []int{}}

	version, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	ownerFilter := ""
	args := []interface{}{}
	if ownerID != "" {
		ownerFilter = " WHERE d.owner_id = ?"
		args = append(args, ownerID)
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents d" + ownerFilter, &status.DocumentsCount},
		{"SELECT COUNT(*) FROM chunks c JOIN documents d ON c.document_id = d.id" + ownerFilter, &status.ChunksCount},
		{"SELECT COUNT(*) FROM embeddings e JOIN chunks c ON e.chunk_id = c.id JOIN documents d ON c.document_id = d.id" + ownerFilter, &status.EmbeddingsCount},
		{"SELECT COUNT(*) FROM messages m JOIN conversations d ON m.conversation_id = d.id" + ownerFilter, &status.MessagesCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, args...).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT dimension FROM embeddings ORDER BY dimension")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var dim int
		if err := rows.Scan(&dim); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.Dimensions = append(status.Dimensions, dim)
	}
	_ = rows.Close()

	// cache_entries exists from schema 1.1.0
	_ = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&status.CacheEntries)

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		FTSIndexesBuilt:     true, // FTS indexes are created with migrations
	}

	return status, nil
}

// Column helpers

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
