package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

// PostgresConfig holds connection and schema settings for PostgresStorage
type PostgresConfig struct {
	DSN       string
	Dimension int
	MaxConns  int
	MinConns  int
}

// PostgresStorage implements Storage on PostgreSQL with pgvector
type PostgresStorage struct {
	pool      *pgxpool.Pool
	dimension int
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStorage connects, installs the vector extension and applies migrations
func NewPostgresStorage(ctx context.Context, cfg PostgresConfig) (*PostgresStorage, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("postgres storage requires a positive embedding dimension")
	}

	// The vector type must exist before AfterConnect can register it
	if err := ensureVectorExtension(ctx, cfg.DSN); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.MaxConns = 10
	if cfg.MaxConns > 0 {
		config.MaxConns = int32(cfg.MaxConns)
	}
	config.MinConns = 2
	if cfg.MinConns > 0 {
		config.MinConns = int32(cfg.MinConns)
	}
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	// Register pgvector types
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	s := &PostgresStorage{pool: pool, dimension: cfg.Dimension}
	if err := s.applyMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return s, nil
}

func ensureVectorExtension(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}
	return nil
}

// postgresMigrations returns the Postgres schema with the embedding column sized to dim
func postgresMigrations(dim int) []Migration {
	return []Migration{
		{
			Version: "1.0.0",
			Up: fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    document_type TEXT,
    tags TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    content TEXT NOT NULL,
    content_tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED,
    page_number INTEGER,
    chunk_index INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (document_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_tsv ON chunks USING GIN(content_tsv);
CREATE TABLE IF NOT EXISTS embeddings (
    chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
    vector VECTOR(%d) NOT NULL,
    dimension INTEGER NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_embeddings_vector ON embeddings USING hnsw (vector vector_cosine_ops);
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS messages (
    id BIGSERIAL PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
`, dim),
			Down: `
DROP TABLE IF EXISTS messages;
DROP TABLE IF EXISTS conversations;
DROP TABLE IF EXISTS embeddings;
DROP TABLE IF EXISTS chunks;
DROP TABLE IF EXISTS documents;
DROP TABLE IF EXISTS schema_version;
`,
		},
	}
}

// splitStatements breaks a migration script into single statements
func splitStatements(script string) []string {
	parts := strings.Split(script, ";\n")
	statements := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p), ";"))
		if p != "" {
			statements = append(statements, p)
		}
	}
	return statements
}

func (s *PostgresStorage) schemaVersion(ctx context.Context) (*semver.Version, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT to_regclass('schema_version') IS NOT NULL").Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if !exists {
		return semver.MustParse("0.0.0"), nil
	}

	rows, err := s.pool.Query(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return latestVersion(versions)
}

func (s *PostgresStorage) applyMigrations(ctx context.Context) error {
	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	pending, err := pendingMigrations(current, postgresMigrations(s.dimension))
	if err != nil {
		return err
	}

	for _, migration := range pending {
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			for _, stmt := range splitStatements(migration.Up) {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", migration.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// BeginTx starts a new transaction
func (s *PostgresStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &postgresTx{tx: tx, storage: s}, nil
}

// postgresTx wraps a pgx transaction. pgx.Tx takes a context on commit; the
// Tx interface does not, so the begin context is not reused there.
type postgresTx struct {
	tx      pgx.Tx
	storage *PostgresStorage
}

func (t *postgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *postgresTx) Rollback() error {
	err := t.tx.Rollback(context.Background())
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (t *postgresTx) UpsertDocument(ctx context.Context, document *Document) error {
	return upsertDocumentPG(ctx, t.tx, document)
}

func (t *postgresTx) UpsertChunk(ctx context.Context, chunk *Chunk) error {
	return upsertChunkPG(ctx, t.tx, chunk)
}

func (t *postgresTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingPG(ctx, t.tx, embedding)
}

// Document operations

func upsertDocumentPG(ctx context.Context, q pgQuerier, document *Document) error {
	if document.ID == "" || document.OwnerID == "" {
		return fmt.Errorf("%w: document requires id and owner", ErrInvalidEntity)
	}
	if document.CreatedAt.IsZero() {
		document.CreatedAt = time.Now().UTC()
	}
	tags := document.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO documents (id, owner_id, filename, document_type, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			filename = EXCLUDED.filename,
			document_type = EXCLUDED.document_type,
			tags = EXCLUDED.tags
	`, document.ID, document.OwnerID, document.Filename,
		pgText(document.DocumentType), tags, document.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpsertDocument(ctx context.Context, document *Document) error {
	return upsertDocumentPG(ctx, s.pool, document)
}

func (s *PostgresStorage) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	var doc Document
	var docType pgtype.Text
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, filename, document_type, tags, created_at
		FROM documents WHERE id = $1
	`, documentID).Scan(&doc.ID, &doc.OwnerID, &doc.Filename, &docType, &doc.Tags, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.DocumentType = docType.String
	return &doc, nil
}

func (s *PostgresStorage) DeleteDocument(ctx context.Context, documentID string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Chunk operations

func upsertChunkPG(ctx context.Context, q pgQuerier, chunk *Chunk) error {
	if chunk.ID == "" || chunk.DocumentID == "" {
		return fmt.Errorf("%w: chunk requires id and document id", ErrInvalidEntity)
	}
	if strings.TrimSpace(chunk.Content) == "" {
		return fmt.Errorf("%w: chunk %s has no content", ErrInvalidEntity, chunk.ID)
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO chunks (id, document_id, content, page_number, chunk_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			content = EXCLUDED.content,
			page_number = EXCLUDED.page_number,
			chunk_index = EXCLUDED.chunk_index
	`, chunk.ID, chunk.DocumentID, chunk.Content, pgInt(chunk.PageNumber), chunk.ChunkIndex, chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpsertChunk(ctx context.Context, chunk *Chunk) error {
	return upsertChunkPG(ctx, s.pool, chunk)
}

func scanChunkPG(row pgx.Row) (*Chunk, error) {
	var chunk Chunk
	var page pgtype.Int4
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &page,
		&chunk.ChunkIndex, &chunk.CreatedAt); err != nil {
		return nil, err
	}
	chunk.PageNumber = pgIntPtr(page)
	return &chunk, nil
}

func (s *PostgresStorage) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	chunk, err := scanChunkPG(s.pool.QueryRow(ctx, `
		SELECT id, document_id, content, page_number, chunk_index, created_at
		FROM chunks WHERE id = $1
	`, chunkID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return chunk, err
}

func (s *PostgresStorage) ListChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, content, page_number, chunk_index, created_at
		FROM chunks WHERE document_id = $1
		ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunkPG(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// Embedding operations

func (s *PostgresStorage) upsertEmbeddingPG(ctx context.Context, q pgQuerier, embedding *Embedding) error {
	if embedding.ChunkID == "" || len(embedding.Vector) == 0 {
		return fmt.Errorf("%w: embedding requires chunk id and vector", ErrInvalidEntity)
	}
	if len(embedding.Vector) != s.dimension {
		return fmt.Errorf("%w: chunk %s has %d, column has %d",
			ErrDimensionMismatch, embedding.ChunkID, len(embedding.Vector), s.dimension)
	}
	embedding.Dimension = len(embedding.Vector)
	if embedding.CreatedAt.IsZero() {
		embedding.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chunk_id) DO UPDATE SET
			vector = EXCLUDED.vector,
			dimension = EXCLUDED.dimension,
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			created_at = EXCLUDED.created_at
	`, embedding.ChunkID, pgvector.NewVector(embedding.Vector), embedding.Dimension,
		embedding.Provider, embedding.Model, embedding.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingPG(ctx, s.pool, embedding)
}

func (s *PostgresStorage) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	var emb Embedding
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx, `
		SELECT chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings WHERE chunk_id = $1
	`, chunkID).Scan(&emb.ChunkID, &vec, &emb.Dimension, &emb.Provider, &emb.Model, &emb.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	emb.Vector = vec.Slice()
	return &emb, nil
}

// Search operations

const pgChunkColumns = `
			c.id, c.document_id, c.content, c.page_number, c.chunk_index,
			d.filename, d.document_type, d.tags, d.created_at`

// SearchVector ranks chunks by 1 - cosine distance
func (s *PostgresStorage) SearchVector(ctx context.Context, vector []float32, scope types.Scope, limit int, threshold float64) ([]types.ScoredChunk, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, column has %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	if limit <= 0 {
		return []types.ScoredChunk{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT`+pgChunkColumns+`,
			1 - (e.vector <=> $1) AS similarity
		FROM chunks c
		INNER JOIN embeddings e ON e.chunk_id = c.id
		INNER JOIN documents d ON d.id = c.document_id
		WHERE d.owner_id = $2
		AND (cardinality($3::text[]) = 0 OR c.document_id = ANY($3))
		AND 1 - (e.vector <=> $1) >= $4
		ORDER BY e.vector <=> $1, c.document_id, c.chunk_index
		LIMIT $5
	`, pgvector.NewVector(vector), scope.UserID, allowList(scope), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	return collectScoredPG(rows, limit)
}

// SearchText ranks chunks matching any query term by ts_rank_cd
func (s *PostgresStorage) SearchText(ctx context.Context, query string, scope types.Scope, limit int) ([]types.ScoredChunk, error) {
	tsquery := tsQueryExpression(query)
	if tsquery == "" || limit <= 0 {
		return []types.ScoredChunk{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT`+pgChunkColumns+`,
			ts_rank_cd(c.content_tsv, q)::float8 AS score
		FROM chunks c
		INNER JOIN documents d ON d.id = c.document_id,
		to_tsquery('simple', $1) q
		WHERE c.content_tsv @@ q
		AND d.owner_id = $2
		AND (cardinality($3::text[]) = 0 OR c.document_id = ANY($3))
		ORDER BY score DESC, c.document_id, c.chunk_index
		LIMIT $4
	`, tsquery, scope.UserID, allowList(scope), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute text search: %w", err)
	}
	return collectScoredPG(rows, limit)
}

// tsQueryExpression joins the query terms with the tsquery OR operator
func tsQueryExpression(query string) string {
	return strings.Join(queryTerms(query), " | ")
}

// allowList never returns nil: a NULL array would make cardinality() NULL
func allowList(scope types.Scope) []string {
	if len(scope.DocumentIDs) == 0 {
		return []string{}
	}
	return scope.DocumentIDs
}

func collectScoredPG(rows pgx.Rows, limit int) ([]types.ScoredChunk, error) {
	defer rows.Close()

	results := make([]types.ScoredChunk, 0, limit)
	for rows.Next() {
		var chunk types.ScoredChunk
		var page pgtype.Int4
		var docType pgtype.Text
		var createdAt time.Time
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &page,
			&chunk.Metadata.ChunkIndex, &chunk.Metadata.Filename, &docType, &chunk.Tags,
			&createdAt, &chunk.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		chunk.Metadata.PageNumber = pgIntPtr(page)
		chunk.DocumentType = docType.String
		if chunk.Tags == nil {
			chunk.Tags = []string{}
		}
		chunk.CreatedAt = &createdAt
		results = append(results, chunk)
	}
	return results, rows.Err()
}

// Conversation operations

func (s *PostgresStorage) CreateConversation(ctx context.Context, conversation *Conversation) error {
	if conversation.ID == "" || conversation.OwnerID == "" {
		return fmt.Errorf("%w: conversation requires id and owner", ErrInvalidEntity)
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, owner_id, title, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title
	`, conversation.ID, conversation.OwnerID, pgText(conversation.Title), conversation.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *PostgresStorage) AppendMessage(ctx context.Context, message *Message) error {
	if message.ConversationID == "" || message.Role == "" {
		return fmt.Errorf("%w: message requires conversation id and role", ErrInvalidEntity)
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, message.ConversationID, message.Role, message.Content, message.CreatedAt).Scan(&message.ID)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListMessages returns the last limit messages in chronological order; a
// negative limit returns the whole conversation
func (s *PostgresStorage) ListMessages(ctx context.Context, conversationID string, limit int) ([]types.Message, error) {
	if limit == 0 {
		return []types.Message{}, nil
	}
	var pgLimit any
	if limit > 0 {
		pgLimit = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, conversationID, pgLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Message, error) {
		var m types.Message
		err := row.Scan(&m.Role, &m.Content, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []types.Message{}
	}
	reverseMessages(messages)
	return messages, nil
}

// Status operations

func (s *PostgresStorage) GetStatus(ctx context.Context, ownerID string) (*Status, error) {
	status := &Status{Backend: "postgres", Dimensions: []int{}}

	version, err := s.schemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	// An empty owner matches every row
	ownerFilter := " WHERE ($1 = '' OR d.owner_id = $1)"
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
		if err := s.pool.QueryRow(ctx, c.query, ownerID).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	rows, err := s.pool.Query(ctx, "SELECT DISTINCT dimension FROM embeddings ORDER BY dimension")
	if err != nil {
		return nil, err
	}
	dims, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	if err != nil {
		return nil, err
	}
	for _, d := range dims {
		status.Dimensions = append(status.Dimensions, int(d))
	}

	var size int64
	if err := s.pool.QueryRow(ctx, "SELECT pg_database_size(current_database())").Scan(&size); err == nil {
		status.IndexSizeMB = float64(size) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		FTSIndexesBuilt:     true,
	}
	return status, nil
}

// Column helpers

func pgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func pgInt(p *int) pgtype.Int4 {
	if p == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*p), Valid: true}
}

func pgIntPtr(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int32)
	return &n
}
