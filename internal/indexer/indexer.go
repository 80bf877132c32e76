package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/ragcontext-mcp/internal/embedder"
	"github.com/dshills/ragcontext-mcp/internal/storage"
)

// ErrIndexingInProgress is returned when another ingest holds the lock
var ErrIndexingInProgress = errors.New("indexing already in progress")

// maxLineBytes bounds a single JSONL record
const maxLineBytes = 16 * 1024 * 1024

// Document is one pre-chunked document to ingest
type Document struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"owner_id"`
	Filename     string       `json:"filename"`
	DocumentType string       `json:"document_type"`
	Tags         []string     `json:"tags,omitempty"`
	Chunks       []ChunkInput `json:"chunks"`
}

// ChunkInput is a fragment of a Document. An empty ID is generated.
type ChunkInput struct {
	ID         string `json:"id,omitempty"`
	Content    string `json:"content"`
	PageNumber *int   `json:"page_number,omitempty"`
}

// Indexer coordinates the ingest pipeline: validate -> embed -> store
type Indexer struct {
	storage  storage.Storage
	embedder embedder.Embedder
	logger   *slog.Logger
	lock     IndexLock
}

// Config contains configuration for one ingest run
type Config struct {
	Workers        int // Concurrent batches (default: runtime.NumCPU())
	BatchSize      int // Documents committed per transaction (default: 20)
	EmbedBatchSize int // Texts per embedding call (default: embedder.DefaultBatchSize)
}

// Statistics contains statistics about the ingest operation
type Statistics struct {
	DocumentsIndexed  int
	DocumentsFailed   int
	ChunksCreated     int
	EmbeddingsCreated int
	Duration          time.Duration
	ErrorMessages     []string
}

// New creates a new Indexer instance
func New(store storage.Storage, emb embedder.Embedder, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		storage:  store,
		embedder: emb,
		logger:   logger,
	}
}

// IndexDocuments embeds and stores docs. Re-ingesting a document ID replaces
// the stored document and all of its chunks.
//
// A document that fails validation or embedding is counted as failed and the
// run continues; storage failures abort the run.
func (idx *Indexer) IndexDocuments(ctx context.Context, docs []Document, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	embedBatch := config.EmbedBatchSize
	if embedBatch <= 0 || embedBatch > embedder.MaxBatchSize {
		embedBatch = embedder.DefaultBatchSize
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	var (
		indexed    atomic.Int32
		failed     atomic.Int32
		chunks     atomic.Int32
		embeddings atomic.Int32
		mu         sync.Mutex // Protect stats.ErrorMessages
	)
	recordFailure := func(docID string, err error) {
		failed.Add(1)
		mu.Lock()
		stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", docID, err))
		mu.Unlock()
		idx.logger.Warn("document_ingest_failed", slog.String("document_id", docID), slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < len(docs); i += batchSize {
		end := i + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[i:end]

		g.Go(func() error {
			prepared := make([]*preparedDocument, 0, len(batch))
			for j := range batch {
				p, err := idx.prepare(gctx, &batch[j], embedBatch)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					recordFailure(batch[j].ID, err)
					continue
				}
				prepared = append(prepared, p)
			}
			if err := idx.store(gctx, prepared); err != nil {
				return err
			}
			for _, p := range prepared {
				indexed.Add(1)
				chunks.Add(int32(len(p.chunks)))
				embeddings.Add(int32(len(p.embeddings)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to index documents: %w", err)
	}

	stats.DocumentsIndexed = int(indexed.Load())
	stats.DocumentsFailed = int(failed.Load())
	stats.ChunksCreated = int(chunks.Load())
	stats.EmbeddingsCreated = int(embeddings.Load())
	stats.Duration = time.Since(startTime)

	idx.logger.Info("ingest_completed",
		slog.Int("documents_indexed", stats.DocumentsIndexed),
		slog.Int("documents_failed", stats.DocumentsFailed),
		slog.Int("chunks_created", stats.ChunksCreated),
		slog.Int64("duration_ms", stats.Duration.Milliseconds()))
	return stats, nil
}

// preparedDocument is a validated document with its chunk embeddings
type preparedDocument struct {
	document   *storage.Document
	chunks     []*storage.Chunk
	embeddings []*storage.Embedding
}

// prepare validates doc and embeds its chunks outside any transaction
func (idx *Indexer) prepare(ctx context.Context, doc *Document, embedBatch int) (*preparedDocument, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	p := &preparedDocument{
		document: &storage.Document{
			ID:           doc.ID,
			OwnerID:      doc.OwnerID,
			Filename:     doc.Filename,
			DocumentType: doc.DocumentType,
			Tags:         doc.Tags,
		},
		chunks: make([]*storage.Chunk, len(doc.Chunks)),
	}

	texts := make([]string, len(doc.Chunks))
	for i, in := range doc.Chunks {
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		p.chunks[i] = &storage.Chunk{
			ID:         id,
			DocumentID: doc.ID,
			Content:    in.Content,
			PageNumber: in.PageNumber,
			ChunkIndex: i,
		}
		texts[i] = in.Content
	}

	if idx.embedder == nil {
		return p, nil
	}

	for start := 0; start < len(texts); start += embedBatch {
		end := start + embedBatch
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
			Texts:     texts[start:end],
			InputType: embedder.InputTypeDocument,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if resp == nil || len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: expected %d embeddings", embedder.ErrProviderFailed, end-start)
		}
		for k, emb := range resp.Embeddings {
			if emb == nil || len(emb.Vector) == 0 {
				return nil, fmt.Errorf("%w: empty embedding for chunk %d", embedder.ErrProviderFailed, start+k)
			}
			p.embeddings = append(p.embeddings, &storage.Embedding{
				ChunkID:   p.chunks[start+k].ID,
				Vector:    emb.Vector,
				Dimension: len(emb.Vector),
				Provider:  resp.Provider,
				Model:     resp.Model,
			})
		}
	}
	return p, nil
}

// store replaces each prepared document and writes the batch in one transaction
func (idx *Indexer) store(ctx context.Context, prepared []*preparedDocument) error {
	if len(prepared) == 0 {
		return nil
	}

	for _, p := range prepared {
		if err := idx.storage.DeleteDocument(ctx, p.document.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to replace document %s: %w", p.document.ID, err)
		}
	}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range prepared {
		if err := tx.UpsertDocument(ctx, p.document); err != nil {
			return fmt.Errorf("failed to store document %s: %w", p.document.ID, err)
		}
		for _, c := range p.chunks {
			if err := tx.UpsertChunk(ctx, c); err != nil {
				return fmt.Errorf("failed to store chunk %s: %w", c.ID, err)
			}
		}
		for _, e := range p.embeddings {
			if err := tx.UpsertEmbedding(ctx, e); err != nil {
				return fmt.Errorf("failed to store embedding for %s: %w", e.ChunkID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func validateDocument(doc *Document) error {
	switch {
	case strings.TrimSpace(doc.ID) == "":
		return fmt.Errorf("document id is required")
	case strings.TrimSpace(doc.OwnerID) == "":
		return fmt.Errorf("owner_id is required")
	case len(doc.Chunks) == 0:
		return fmt.Errorf("document has no chunks")
	}
	seen := make(map[string]bool, len(doc.Chunks))
	for i, c := range doc.Chunks {
		if strings.TrimSpace(c.Content) == "" {
			return fmt.Errorf("chunk %d has no content", i)
		}
		if c.ID != "" {
			if seen[c.ID] {
				return fmt.Errorf("duplicate chunk id %s", c.ID)
			}
			seen[c.ID] = true
		}
	}
	return nil
}

// ReadJSONL decodes one Document per non-blank line of r
func ReadJSONL(r io.Reader) ([]Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var docs []Document
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}
