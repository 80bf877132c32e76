// Package storage provides the chunk store behind retrieval: documents, their
// chunks and embeddings, conversation history, and the shared cache table.
//
// Two backends implement Storage:
//   - SQLiteStorage: single file, FTS5 for lexical search, cosine similarity
//     in Go (default build) or vec_distance_cosine (sqlite_vec build tag)
//   - PostgresStorage: pgvector for nearest-neighbor search, tsvector with
//     ts_rank_cd for lexical search
//
// # Database Schema
//
// Tables:
//   - documents: owner, filename, document type, tags
//   - chunks: document text slices with optional page number
//   - embeddings: one vector per chunk
//   - conversations, messages: dialogue history
//   - cache_entries: key/value rows for the SQL cache backend
//   - chunks_fts: FTS5 full-text index over chunk content (SQLite)
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("ragcontext.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	results, err := store.SearchVector(ctx, vector, types.Scope{UserID: "u1"}, 10, 0.3)
//
// # Transactions
//
// Ingest writes a document with all its chunks atomically:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	_ = tx.UpsertDocument(ctx, doc)
//	_ = tx.UpsertChunk(ctx, chunk)
//	_ = tx.UpsertEmbedding(ctx, emb)
//
//	return tx.Commit()
//
// # Scores
//
// SearchVector reports cosine similarity (1 - cosine distance) and only
// returns chunks at or above the threshold. SearchText reports the raw
// lexical rank, higher is better, and is not normalized. Stored vectors whose
// dimension differs from the query vector fail the search with
// ErrDimensionMismatch.
//
// # Migrations
//
// Schema versions are semver strings recorded in schema_version. The applied
// version is the highest recorded one; ApplyMigrations runs every newer
// migration in order, each in its own transaction.
package storage
