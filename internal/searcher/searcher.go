package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/ragcontext-mcp/internal/assembler"
	"github.com/dshills/ragcontext-mcp/internal/cache"
	"github.com/dshills/ragcontext-mcp/internal/fusion"
	"github.com/dshills/ragcontext-mcp/internal/reranker"
	"github.com/dshills/ragcontext-mcp/internal/retriever"
	"github.com/dshills/ragcontext-mcp/pkg/types"
)

// Request defaults and bounds
const (
	DefaultLimit            = 10
	MaxLimit                = 100
	DefaultThreshold        = 0.3
	DefaultMaxContextTokens = 4000
	MaxQueryLength          = 2000
	DefaultCandidateFactor  = 2
	DefaultHistoryLimit     = 50
)

// QueryEmbedder turns query text into a vector
type QueryEmbedder interface {
	Embed(ctx context.Context, query string) ([]float32, error)
	Model() string
}

// HistoryReader loads a conversation's messages, oldest first.
// A negative limit returns every message.
type HistoryReader interface {
	ListMessages(ctx context.Context, conversationID string, limit int) ([]types.Message, error)
}

// SearchRequest contains parameters for one retrieval
type SearchRequest struct {
	Query string
	Scope types.Scope

	// Limit caps the fused result count (default 10, max 100)
	Limit int

	// Threshold is the minimum vector similarity (default 0.3)
	Threshold *float64

	// Weights overrides the fusion weights
	Weights *fusion.Weights

	// EnableRerank overrides the searcher default
	EnableRerank *bool
	RerankTopN   int

	MaxContextTokens int
	PrioritizeRecent bool

	// MinRelevance overrides the assembler's relevance floor
	MinRelevance *float64

	// ConversationID loads history from the HistoryReader when History is empty
	ConversationID string
	History        []types.Message

	UseCache bool
}

// Timing reports per-stage wall time in milliseconds
type Timing struct {
	EmbedMs    int64 `json:"embed_ms"`
	RetrieveMs int64 `json:"retrieve_ms"`
	RerankMs   int64 `json:"rerank_ms"`
	AssembleMs int64 `json:"assemble_ms"`
	TotalMs    int64 `json:"total_ms"`
}

// SearchResponse contains ranked results, the assembled context and metadata
type SearchResponse struct {
	RequestID     string              `json:"request_id"`
	Results       []types.FusedResult `json:"results"`
	Context       types.ContextWindow `json:"context"`
	Timing        Timing              `json:"timing"`
	CacheHit      bool                `json:"cache_hit"`
	Reranked      bool                `json:"reranked"`
	VectorResults int                 `json:"vector_results"`
	TextResults   int                 `json:"text_results"`
}

// Dependencies are the collaborators of a Searcher. Reranker, History and
// Cache may be nil.
type Dependencies struct {
	Embedder  QueryEmbedder
	Vector    *retriever.VectorRetriever
	FullText  *retriever.FullTextRetriever
	Reranker  *reranker.Reranker
	Assembler *assembler.Assembler
	History   HistoryReader
	Cache     *cache.Cache[SearchResponse]
	Logger    *slog.Logger
}

// Options holds searcher-wide defaults
type Options struct {
	Weights          fusion.Weights
	EnableRerank     bool
	RerankTopN       int
	Threshold        float64
	MaxContextTokens int

	// CandidateFactor multiplies Limit for each retriever's fetch size
	CandidateFactor int
	HistoryLimit    int
	CacheTTL        time.Duration
}

// DefaultOptions returns the searcher defaults
func DefaultOptions() Options {
	return Options{
		Weights:          fusion.DefaultWeights(),
		EnableRerank:     true,
		Threshold:        DefaultThreshold,
		MaxContextTokens: DefaultMaxContextTokens,
		CandidateFactor:  DefaultCandidateFactor,
		HistoryLimit:     DefaultHistoryLimit,
		CacheTTL:         cache.DefaultTTL,
	}
}

// Searcher runs the retrieve, fuse, rerank and assemble pipeline
type Searcher struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger

	// generation is part of every cache key; bumping it orphans cached responses
	generation atomic.Uint64
}

// New creates a Searcher
func New(deps Dependencies, opts Options) (*Searcher, error) {
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder not initialized")
	}
	if deps.Vector == nil || deps.FullText == nil {
		return nil, fmt.Errorf("retrievers not initialized")
	}
	if deps.Assembler == nil {
		return nil, fmt.Errorf("assembler not initialized")
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, types.NewValidationError("threshold", "must be within [0, 1]")
	}
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = DefaultMaxContextTokens
	}
	if opts.CandidateFactor <= 0 {
		opts.CandidateFactor = DefaultCandidateFactor
	}
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Searcher{deps: deps, opts: opts, logger: deps.Logger}, nil
}

// resolved is a SearchRequest with every default applied
type resolved struct {
	query            string
	scope            types.Scope
	limit            int
	threshold        float64
	weights          fusion.Weights
	rerank           bool
	rerankTopN       int
	maxContextTokens int
	prioritizeRecent bool
	minRelevance     float64
	history          []types.Message
	useCache         bool
}

// Search performs a retrieval for req.
//
// Validation failures are returned as *types.ValidationError before any
// external call. An embedding failure, or both retrievers failing, is
// returned as *types.FatalRetrievalError. Rerank and cache failures only
// degrade the response.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()
	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID)

	r, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	if len(r.history) == 0 && req.ConversationID != "" && s.deps.History != nil {
		r.history, err = s.deps.History.ListMessages(ctx, req.ConversationID, s.opts.HistoryLimit)
		if err != nil {
			return nil, types.NewFatalRetrievalError(types.StageHistory, err)
		}
	}

	var cacheKey string
	if r.useCache && s.deps.Cache != nil {
		cacheKey = s.cacheKey(r)
		if cached, ok := s.deps.Cache.Get(ctx, cacheKey); ok {
			cached.RequestID = requestID
			cached.CacheHit = true
			cached.Timing = Timing{TotalMs: time.Since(startTime).Milliseconds()}
			logger.Debug("search_cache_hit", slog.Int("results", len(cached.Results)))
			return &cached, nil
		}
	}

	response := &SearchResponse{RequestID: requestID}

	vectorResults, textResults, err := s.retrieve(ctx, logger, r, &response.Timing)
	if err != nil {
		logger.Error("search_failed", slog.String("error", err.Error()))
		return nil, err
	}
	response.VectorResults = len(vectorResults)
	response.TextResults = len(textResults)

	results := fusion.Fuse(vectorResults, textResults, r.weights)
	if len(results) > r.limit {
		results = results[:r.limit]
	}

	if r.rerank && s.deps.Reranker != nil && len(results) > 0 {
		rerankStart := time.Now()
		results, response.Reranked = s.deps.Reranker.Rerank(ctx, r.query, results, r.rerankTopN)
		response.Timing.RerankMs = time.Since(rerankStart).Milliseconds()
	}
	response.Results = results

	assembleStart := time.Now()
	response.Context = s.deps.Assembler.AssembleWithFloor(
		types.Chunks(results), r.history, r.maxContextTokens, r.prioritizeRecent, r.minRelevance)
	response.Timing.AssembleMs = time.Since(assembleStart).Milliseconds()
	response.Timing.TotalMs = time.Since(startTime).Milliseconds()

	// A rerank fallback is not cached so the next request retries the reranker
	rerankDegraded := r.rerank && s.deps.Reranker != nil && !response.Reranked
	if cacheKey != "" && len(response.Results) > 0 && !rerankDegraded {
		s.deps.Cache.Set(context.WithoutCancel(ctx), cacheKey, *response, s.opts.CacheTTL)
	}

	logger.Info("search_completed",
		slog.Int("results", len(response.Results)),
		slog.Int("vector_results", response.VectorResults),
		slog.Int("text_results", response.TextResults),
		slog.Bool("reranked", response.Reranked),
		slog.Int("context_tokens", response.Context.TotalTokens),
		slog.Bool("context_truncated", response.Context.WasTruncated),
		slog.Int64("duration_ms", response.Timing.TotalMs))

	return response, nil
}

// retrieve embeds the query and runs full-text search concurrently, then
// vector search once the embedding is available.
func (s *Searcher) retrieve(ctx context.Context, logger *slog.Logger, r resolved, timing *Timing) ([]types.ScoredChunk, []types.ScoredChunk, error) {
	candidates := r.limit * s.opts.CandidateFactor

	var (
		vectorResults, textResults   []types.ScoredChunk
		embedErr, vectorErr, textErr error
	)

	// Neither branch returns an error to the group: one retriever failing must
	// not cancel the other.
	var g errgroup.Group
	retrieveStart := time.Now()

	g.Go(func() error {
		embedStart := time.Now()
		vector, err := s.deps.Embedder.Embed(ctx, r.query)
		timing.EmbedMs = time.Since(embedStart).Milliseconds()
		if err != nil {
			embedErr = err
			return nil
		}
		vectorResults, vectorErr = s.deps.Vector.Search(ctx, vector, r.scope, candidates, r.threshold)
		return nil
	})

	g.Go(func() error {
		textResults, textErr = s.deps.FullText.Search(ctx, r.query, r.scope, candidates)
		return nil
	})

	_ = g.Wait()
	timing.RetrieveMs = time.Since(retrieveStart).Milliseconds()

	if embedErr != nil {
		return nil, nil, types.NewFatalRetrievalError(types.StageEmbed, embedErr)
	}

	switch {
	case vectorErr != nil && textErr != nil:
		return nil, nil, types.NewFatalRetrievalError(types.StageRetrieve, errors.Join(
			types.NewFatalRetrievalError(types.StageVectorSearch, vectorErr),
			types.NewFatalRetrievalError(types.StageFullTextSearch, textErr),
		))
	case vectorErr != nil:
		logger.Warn("vector_search_failed_continuing", slog.String("error", vectorErr.Error()))
		vectorResults = nil
	case textErr != nil:
		logger.Warn("fulltext_search_failed_continuing", slog.String("error", textErr.Error()))
		textResults = nil
	}

	return vectorResults, textResults, nil
}

// resolve validates req and fills in defaults
func (s *Searcher) resolve(req SearchRequest) (resolved, error) {
	r := resolved{
		query:            strings.TrimSpace(req.Query),
		scope:            req.Scope,
		limit:            req.Limit,
		threshold:        s.opts.Threshold,
		weights:          s.opts.Weights,
		rerank:           s.opts.EnableRerank,
		rerankTopN:       req.RerankTopN,
		maxContextTokens: req.MaxContextTokens,
		prioritizeRecent: req.PrioritizeRecent,
		minRelevance:     s.deps.Assembler.Config().MinRelevance,
		history:          req.History,
		useCache:         req.UseCache,
	}

	if r.query == "" {
		return r, types.NewValidationError("query", "must not be empty")
	}
	if n := utf8.RuneCountInString(r.query); n > MaxQueryLength {
		return r, types.NewValidationError("query", fmt.Sprintf("length %d exceeds %d characters", n, MaxQueryLength))
	}
	if err := r.scope.Validate(); err != nil {
		return r, err
	}

	switch {
	case r.limit < 0:
		return r, types.NewValidationError("limit", "must not be negative")
	case r.limit == 0:
		r.limit = DefaultLimit
	case r.limit > MaxLimit:
		r.limit = MaxLimit
	}

	if req.Threshold != nil {
		r.threshold = *req.Threshold
	}
	if math.IsNaN(r.threshold) || r.threshold < 0 || r.threshold > 1 {
		return r, types.NewValidationError("threshold", "must be within [0, 1]")
	}

	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			return r, err
		}
		r.weights = *req.Weights
	}

	if req.EnableRerank != nil {
		r.rerank = *req.EnableRerank
	}
	if r.rerankTopN < 0 {
		return r, types.NewValidationError("rerank_top_n", "must not be negative")
	}
	if r.rerankTopN == 0 {
		r.rerankTopN = s.opts.RerankTopN
	}
	if r.rerankTopN <= 0 || r.rerankTopN > r.limit {
		r.rerankTopN = r.limit
	}

	switch {
	case r.maxContextTokens < 0:
		return r, types.NewValidationError("max_context_tokens", "must not be negative")
	case r.maxContextTokens == 0:
		r.maxContextTokens = s.opts.MaxContextTokens
	}

	if req.MinRelevance != nil {
		if math.IsNaN(*req.MinRelevance) || math.IsInf(*req.MinRelevance, 0) {
			return r, types.NewValidationError("min_relevance", "must be a finite number")
		}
		r.minRelevance = *req.MinRelevance
	}

	for i, m := range r.history {
		if strings.TrimSpace(m.Role) == "" {
			return r, types.NewValidationError("history", fmt.Sprintf("message %d has no role", i))
		}
	}

	return r, nil
}

// cacheKey covers every parameter that changes the response
func (s *Searcher) cacheKey(r resolved) string {
	docIDs := append([]string(nil), r.scope.DocumentIDs...)
	sort.Strings(docIDs)

	history := make([]string, len(r.history))
	for i, m := range r.history {
		history[i] = m.Role + ":" + m.Content
	}

	return cache.Key(
		"search",
		strconv.FormatUint(s.generation.Load(), 10),
		s.deps.Embedder.Model(),
		r.query,
		r.scope.UserID,
		strings.Join(docIDs, ","),
		strconv.Itoa(r.limit),
		formatFloat(r.threshold),
		formatFloat(r.weights.Vector),
		formatFloat(r.weights.FullText),
		strconv.FormatBool(r.rerank && s.deps.Reranker != nil),
		strconv.Itoa(r.rerankTopN),
		strconv.Itoa(r.maxContextTokens),
		strconv.FormatBool(r.prioritizeRecent),
		formatFloat(r.minRelevance),
		cache.Key(history...),
	)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// InvalidateCache makes every response cached by this Searcher unreachable
// and purges the backend. Called after ingest so new documents become visible.
func (s *Searcher) InvalidateCache(ctx context.Context) {
	s.generation.Add(1)
	s.deps.Cache.Purge(ctx)
}

// CacheStats returns search cache counters
func (s *Searcher) CacheStats() cache.Stats {
	return s.deps.Cache.Stats()
}

// Flush waits for pending cache writes
func (s *Searcher) Flush() {
	s.deps.Cache.Flush()
}
