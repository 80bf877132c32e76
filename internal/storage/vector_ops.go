package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

// chunkColumns is the projection shared by vector and text search
const chunkColumns = `
			c.id, c.document_id, c.content, c.page_number, c.chunk_index,
			d.filename, d.document_type, d.tags, d.created_at`

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, queryVector []float32, scope types.Scope, limit int, threshold float64) ([]types.ScoredChunk, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if limit <= 0 {
		return []types.ScoredChunk{}, nil
	}
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, queryVector, scope, limit, threshold)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, db, queryVector, scope, limit, threshold)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, db *sql.DB, queryVector []float32, scope types.Scope, limit int, threshold float64) ([]types.ScoredChunk, error) {
	where, args := scopeFilter(scope)

	// vec_distance_cosine refuses mixed lengths, report it the same way as the fallback
	var mismatched int
	checkArgs := append([]interface{}{}, args...)
	checkArgs = append(checkArgs, len(queryVector))
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN documents d ON c.document_id = d.id
		WHERE `+where+` AND e.dimension != ?`, checkArgs...).Scan(&mismatched)
	if err != nil {
		return nil, fmt.Errorf("failed to check embedding dimensions: %w", err)
	}
	if mismatched > 0 {
		return nil, fmt.Errorf("%w: %d stored vectors differ from query dimension %d",
			ErrDimensionMismatch, mismatched, len(queryVector))
	}

	blob := serializeVector(queryVector)

	// vec_distance_cosine returns distance (lower is better); similarity = 1 - distance
	query := `
		SELECT` + chunkColumns + `,
			1.0 - vec_distance_cosine(e.vector, ?) AS similarity
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN documents d ON c.document_id = d.id
		WHERE ` + where + `
		AND (1.0 - vec_distance_cosine(e.vector, ?)) >= ?
		ORDER BY similarity DESC
		LIMIT ?`
	queryArgs := append([]interface{}{blob}, args...)
	queryArgs = append(queryArgs, blob, threshold, limit)

	rows, err := db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectScored(rows, limit)
}

// searchVectorFallback performs vector search using Go-based cosine similarity computation
// This is used when sqlite-vec extension is not available (purego builds)
func searchVectorFallback(ctx context.Context, db *sql.DB, queryVector []float32, scope types.Scope, limit int, threshold float64) ([]types.ScoredChunk, error) {
	where, args := scopeFilter(scope)
	query := `
		SELECT` + chunkColumns + `,
			e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN documents d ON c.document_id = d.id
		WHERE ` + where + `
		ORDER BY c.document_id, c.chunk_index`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector, threshold)
	if err != nil {
		return nil, err
	}

	sortByScore(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// computeSimilarityScores scans candidate rows and keeps those at or above threshold
func computeSimilarityScores(rows *sql.Rows, queryVector []float32, threshold float64) ([]types.ScoredChunk, error) {
	candidates := make([]types.ScoredChunk, 0, 256)

	for rows.Next() {
		var blob []byte
		chunk, err := scanScoredChunk(rows, &blob)
		if err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			return nil, fmt.Errorf("%w: chunk %s has %d, query has %d",
				ErrDimensionMismatch, chunk.ID, len(vector), len(queryVector))
		}

		chunk.Score = cosineSimilarity(queryVector, vector)
		if chunk.Score < threshold {
			continue
		}
		candidates = append(candidates, chunk)
	}

	return candidates, rows.Err()
}

// searchText performs BM25 full-text search using FTS5. The raw rank is
// reported as -bm25() so that higher is better.
func searchText(ctx context.Context, db *sql.DB, query string, scope types.Scope, limit int) ([]types.ScoredChunk, error) {
	match := ftsMatchExpression(query)
	if match == "" || limit <= 0 {
		return []types.ScoredChunk{}, nil
	}

	where, args := scopeFilter(scope)
	sqlQuery := `
		SELECT` + chunkColumns + `,
			-bm25(chunks_fts) AS score
		FROM chunks_fts
		INNER JOIN chunks c ON c.rowid = chunks_fts.rowid
		INNER JOIN documents d ON c.document_id = d.id
		WHERE chunks_fts MATCH ?
		AND ` + where + `
		ORDER BY score DESC
		LIMIT ?`
	queryArgs := append([]interface{}{match}, args...)
	queryArgs = append(queryArgs, limit)

	rows, err := db.QueryContext(ctx, sqlQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectScored(rows, limit)
}

// Helper functions

// scopeFilter builds the owner and document allow-list predicate
func scopeFilter(scope types.Scope) (string, []interface{}) {
	where := "d.owner_id = ?"
	args := []interface{}{scope.UserID}
	if len(scope.DocumentIDs) > 0 {
		where += " AND c.document_id IN (" + placeholders(len(scope.DocumentIDs)) + ")"
		for _, id := range scope.DocumentIDs {
			args = append(args, id)
		}
	}
	return where, args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// scanScoredChunk scans the chunkColumns projection followed by last
func scanScoredChunk(rows *sql.Rows, last interface{}) (types.ScoredChunk, error) {
	var chunk types.ScoredChunk
	var page sql.NullInt64
	var docType sql.NullString
	var tags string
	var createdAt time.Time
	if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &page,
		&chunk.Metadata.ChunkIndex, &chunk.Metadata.Filename, &docType, &tags,
		&createdAt, last); err != nil {
		return chunk, fmt.Errorf("failed to scan result: %w", err)
	}

	chunk.Metadata.PageNumber = intPtr(page)
	chunk.DocumentType = docType.String
	decoded, err := decodeTags(tags)
	if err != nil {
		return chunk, err
	}
	chunk.Tags = decoded
	if !createdAt.IsZero() {
		chunk.CreatedAt = &createdAt
	}
	return chunk, nil
}

// collectScored scans rows whose last column is the score
func collectScored(rows *sql.Rows, limit int) ([]types.ScoredChunk, error) {
	results := make([]types.ScoredChunk, 0, limit)
	for rows.Next() {
		var score float64
		chunk, err := scanScoredChunk(rows, &score)
		if err != nil {
			return nil, err
		}
		chunk.Score = score
		results = append(results, chunk)
	}
	return results, rows.Err()
}

// sortByScore sorts descending; equal scores keep their scan order
func sortByScore(chunks []types.ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}

// queryTerms splits text into runs of letters, digits and underscores
func queryTerms(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// ftsMatchExpression builds an FTS5 expression matching any term. Every term
// is quoted, so FTS5 operators in the input are matched literally.
func ftsMatchExpression(query string) string {
	terms := queryTerms(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
