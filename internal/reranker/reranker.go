package reranker

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

// DefaultTimeout bounds the rerank call independently of retrieval timeouts
const DefaultTimeout = 3 * time.Second

// Options configures a Reranker
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Reranker reorders fused results with an external relevance model and falls
// back to the input order whenever that model cannot be used.
type Reranker struct {
	client  Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Reranker over client
func New(client Client, opts Options) *Reranker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reranker{client: client, timeout: opts.Timeout, logger: opts.Logger}
}

// Rerank returns results reordered by relevance, with Score replaced by the
// relevance value and Reranked set. The boolean reports whether reranking was
// applied; when it is false the returned slice is results itself, untouched.
//
// A topN <= 0 asks for every result.
func (r *Reranker) Rerank(ctx context.Context, query string, results []types.FusedResult, topN int) ([]types.FusedResult, bool) {
	if len(results) == 0 || r == nil || r.client == nil {
		return results, false
	}
	if topN <= 0 {
		topN = len(results)
	}

	documents := make([]Document, len(results))
	for i, res := range results {
		documents[i] = Document{
			Text:       res.Content,
			DocumentID: res.DocumentID,
			Filename:   res.Metadata.Filename,
		}
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	scores, err := r.client.Rerank(callCtx, query, documents, topN)
	cancel()
	elapsed := time.Since(start)

	if err != nil {
		r.logger.Warn("reranking_failed_using_original_order",
			slog.String("error", err.Error()),
			slog.Int("candidate_count", len(results)),
			slog.Int64("duration_ms", elapsed.Milliseconds()))
		return results, false
	}

	reranked := make([]types.FusedResult, 0, len(scores))
	used := make(map[int]bool, len(scores))
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(results) || used[s.Index] {
			r.logger.Warn("rerank_result_unmappable",
				slog.Int("index", s.Index),
				slog.Int("candidate_count", len(results)))
			continue
		}
		used[s.Index] = true

		res := results[s.Index]
		res.ScoredChunk = res.ScoredChunk.Clone()
		res.Score = s.RelevanceScore
		res.Reranked = true
		reranked = append(reranked, res)
	}

	if len(reranked) == 0 {
		r.logger.Warn("reranking_failed_using_original_order",
			slog.String("error", "no mappable results"),
			slog.Int("candidate_count", len(results)),
			slog.Int64("duration_ms", elapsed.Milliseconds()))
		return results, false
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	r.logger.Info("reranking_completed",
		slog.Int("candidate_count", len(results)),
		slog.Int("reranked_count", len(reranked)),
		slog.String("model", r.client.ModelName()),
		slog.Int64("duration_ms", elapsed.Milliseconds()))
	return reranked, true
}
