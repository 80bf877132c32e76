// Package fusion merges vector and full-text result lists into one ranked list.
//
// Fusion is a linear weighted sum of the raw stage scores, not reciprocal
// rank fusion. Scores are not normalized first, so a lexical rank (unbounded)
// can outweigh a cosine similarity (bounded) at equal weight.
package fusion

import (
	"fmt"
	"math"
	"sort"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

// Default fusion weights
const (
	DefaultVectorWeight   = 0.7
	DefaultFullTextWeight = 0.3
)

// Weights scale each stage's score before summation
type Weights struct {
	Vector   float64 `json:"vector" koanf:"vector"`
	FullText float64 `json:"fulltext" koanf:"fulltext"`
}

// DefaultWeights returns the 0.7 / 0.3 split
func DefaultWeights() Weights {
	return Weights{Vector: DefaultVectorWeight, FullText: DefaultFullTextWeight}
}

// Validate rejects negative or non-finite weights
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"weights.vector": w.Vector, "weights.fulltext": w.FullText} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return types.NewValidationError(name, fmt.Sprintf("must be a non-negative number, got %v", v))
		}
	}
	return nil
}

// Fuse combines the two lists into results unique by chunk ID, sorted by
// fused score descending. A chunk's fused score is
// vectorScore*w.Vector + fullTextScore*w.FullText, with a missing side
// contributing nothing. Equal scores keep first-insertion order, and vector
// results are inserted first.
func Fuse(vector, fullText []types.ScoredChunk, w Weights) []types.FusedResult {
	index := make(map[string]int, len(vector)+len(fullText))
	fused := make([]types.FusedResult, 0, len(vector)+len(fullText))

	for _, c := range vector {
		// Duplicate within one list: the first occurrence wins
		if _, ok := index[c.ID]; ok {
			continue
		}
		r := types.FusedResult{
			ScoredChunk: c.Clone(),
			VectorScore: c.Score,
			InVector:    true,
		}
		r.Score = c.Score * w.Vector
		index[c.ID] = len(fused)
		fused = append(fused, r)
	}

	for _, c := range fullText {
		if i, ok := index[c.ID]; ok {
			if fused[i].InFullText {
				continue
			}
			fused[i].FullTextScore = c.Score
			fused[i].InFullText = true
			fused[i].Score += c.Score * w.FullText
			continue
		}
		r := types.FusedResult{
			ScoredChunk:   c.Clone(),
			FullTextScore: c.Score,
			InFullText:    true,
		}
		r.Score = c.Score * w.FullText
		index[c.ID] = len(fused)
		fused = append(fused, r)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused
}
