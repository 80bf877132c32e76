package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

// DefaultTimeout bounds a single store call
const DefaultTimeout = 5 * time.Second

var (
	// ErrEmptyVector is returned when vector search is asked to match nothing
	ErrEmptyVector = errors.New("query vector is empty")
)

// VectorStore runs nearest-neighbor search over chunk embeddings
type VectorStore interface {
	SearchVector(ctx context.Context, vector []float32, scope types.Scope, limit int, threshold float64) ([]types.ScoredChunk, error)
}

// TextStore runs lexical match and rank over chunk text
type TextStore interface {
	SearchText(ctx context.Context, query string, scope types.Scope, limit int) ([]types.ScoredChunk, error)
}

// Options configures a retriever
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// VectorRetriever enforces scope and threshold over a VectorStore
type VectorRetriever struct {
	store   VectorStore
	timeout time.Duration
	logger  *slog.Logger
}

// NewVectorRetriever creates a VectorRetriever over store
func NewVectorRetriever(store VectorStore, opts Options) *VectorRetriever {
	opts = opts.withDefaults()
	return &VectorRetriever{store: store, timeout: opts.Timeout, logger: opts.Logger}
}

// Search returns at most limit chunks ordered by similarity descending, each
// with similarity >= threshold and inside scope.
func (r *VectorRetriever) Search(ctx context.Context, vector []float32, scope types.Scope, limit int, threshold float64) ([]types.ScoredChunk, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if limit <= 0 {
		return []types.ScoredChunk{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	results, err := r.store.SearchVector(ctx, vector, scope, limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	kept := make([]types.ScoredChunk, 0, len(results))
	for _, c := range results {
		if c.Score < threshold || !scope.Allows(c.DocumentID) {
			r.logger.Debug("vector_result_dropped",
				slog.String("chunk_id", c.ID),
				slog.Float64("score", c.Score))
			continue
		}
		kept = append(kept, c)
	}

	kept = rank(kept, limit)
	r.logger.Debug("vector_search_completed",
		slog.Int("result_count", len(kept)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return kept, nil
}

// FullTextRetriever sanitizes queries and ranks lexical matches from a TextStore
type FullTextRetriever struct {
	store   TextStore
	timeout time.Duration
	logger  *slog.Logger
}

// NewFullTextRetriever creates a FullTextRetriever over store
func NewFullTextRetriever(store TextStore, opts Options) *FullTextRetriever {
	opts = opts.withDefaults()
	return &FullTextRetriever{store: store, timeout: opts.Timeout, logger: opts.Logger}
}

// Search returns at most limit chunks ordered by lexical rank descending. A
// query with no searchable terms yields an empty list without touching the store.
func (r *FullTextRetriever) Search(ctx context.Context, query string, scope types.Scope, limit int) ([]types.ScoredChunk, error) {
	sanitized := Sanitize(query)
	if sanitized == "" || limit <= 0 {
		return []types.ScoredChunk{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	results, err := r.store.SearchText(ctx, sanitized, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}

	kept := make([]types.ScoredChunk, 0, len(results))
	for _, c := range results {
		if scope.Allows(c.DocumentID) {
			kept = append(kept, c)
		}
	}

	kept = rank(kept, limit)
	r.logger.Debug("fulltext_search_completed",
		slog.Int("result_count", len(kept)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return kept, nil
}

// booleanOperators are the standalone words lexical engines treat as syntax
var booleanOperators = map[string]bool{
	"AND":  true,
	"OR":   true,
	"NOT":  true,
	"NEAR": true,
}

// Sanitize strips operator punctuation and boolean keywords from a query and
// collapses whitespace. Letters, digits and underscores survive.
func Sanitize(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return ' '
	}, query)

	fields := strings.Fields(cleaned)
	terms := fields[:0]
	for _, f := range fields {
		if !booleanOperators[f] {
			terms = append(terms, f)
		}
	}
	return strings.Join(terms, " ")
}

// rank sorts by score descending (stable) and truncates to limit
func rank(chunks []types.ScoredChunk, limit int) []types.ScoredChunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks
}
