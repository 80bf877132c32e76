package fusion

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

func sc(id string, score float64) types.ScoredChunk {
	return types.ScoredChunk{ID: id, DocumentID: "doc", Content: id, Score: score}
}

func fusedIDs(results []types.FusedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestFuse_WeightedSumScenario(t *testing.T) {
	vector := []types.ScoredChunk{sc("A", 0.9), sc("B", 0.6)}
	fullText := []types.ScoredChunk{sc("A", 0.0), sc("B", 0.8)}

	got := Fuse(vector, fullText, DefaultWeights())

	require.Len(t, got, 2)
	assert.Equal(t, []string{"B", "A"}, fusedIDs(got))
	assert.InDelta(t, 0.66, got[0].Score, 1e-9)
	assert.InDelta(t, 0.63, got[1].Score, 1e-9)
	assert.True(t, got[0].InVector && got[0].InFullText)
	assert.Equal(t, 0.6, got[0].VectorScore)
	assert.Equal(t, 0.8, got[0].FullTextScore)
}

func TestFuse_TiesKeepInsertionOrder(t *testing.T) {
	// Vector-only and full-text-only results with equal fused score
	vector := []types.ScoredChunk{sc("V", 0.3)}
	fullText := []types.ScoredChunk{sc("F", 0.7)}

	got := Fuse(vector, fullText, DefaultWeights())
	assert.InDelta(t, got[0].Score, got[1].Score, 1e-12)
	assert.Equal(t, []string{"V", "F"}, fusedIDs(got))
}

func TestFuse_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		vector   []types.ScoredChunk
		fullText []types.ScoredChunk
		want     []string
	}{
		{name: "both empty", want: []string{}},
		{name: "vector only", vector: []types.ScoredChunk{sc("a", 0.5), sc("b", 0.9)}, want: []string{"b", "a"}},
		{name: "full-text only", fullText: []types.ScoredChunk{sc("x", 2), sc("y", 9)}, want: []string{"y", "x"}},
		{name: "duplicate inside one list", vector: []types.ScoredChunk{sc("a", 0.5), sc("a", 0.9)}, want: []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fuse(tt.vector, tt.fullText, DefaultWeights())
			assert.Equal(t, tt.want, fusedIDs(got))
			for _, r := range got {
				assert.NoError(t, r.Validate())
			}
		})
	}
}

func TestFuse_RawScoresAreNotNormalized(t *testing.T) {
	// An unbounded lexical rank dominates a perfect similarity
	got := Fuse([]types.ScoredChunk{sc("sem", 1.0)}, []types.ScoredChunk{sc("lex", 12.0)}, DefaultWeights())
	assert.Equal(t, []string{"lex", "sem"}, fusedIDs(got))
	assert.InDelta(t, 3.6, got[0].Score, 1e-9)
}

func TestFuse_DoesNotAliasInput(t *testing.T) {
	page := 3
	vector := []types.ScoredChunk{{ID: "a", DocumentID: "d", Content: "x", Score: 1, Tags: []string{"t"}, Metadata: types.ChunkMetadata{PageNumber: &page}}}
	got := Fuse(vector, nil, DefaultWeights())

	got[0].Tags[0] = "changed"
	*got[0].Metadata.PageNumber = 9
	assert.Equal(t, "t", vector[0].Tags[0])
	assert.Equal(t, 3, page)
	assert.Equal(t, 1.0, vector[0].Score)
}

// Property: unique ids, sorted non-increasing, score equals the weighted sum
func TestFuse_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	idPool := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	for iter := 0; iter < 200; iter++ {
		w := Weights{Vector: rng.Float64(), FullText: rng.Float64()}
		vScores := map[string]float64{}
		fScores := map[string]float64{}
		var vector, fullText []types.ScoredChunk
		for _, id := range idPool {
			if rng.Intn(2) == 0 {
				s := rng.Float64()
				vScores[id] = s
				vector = append(vector, sc(id, s))
			}
			if rng.Intn(2) == 0 {
				s := rng.Float64() * 20
				fScores[id] = s
				fullText = append(fullText, sc(id, s))
			}
		}

		got := Fuse(vector, fullText, w)

		seen := map[string]bool{}
		for i, r := range got {
			require.False(t, seen[r.ID], "duplicate id %s", r.ID)
			seen[r.ID] = true
			if i > 0 {
				require.GreaterOrEqual(t, got[i-1].Score, r.Score)
			}
			want := vScores[r.ID]*w.Vector + fScores[r.ID]*w.FullText
			require.InDelta(t, want, r.Score, 1e-9)
		}
		require.Len(t, got, len(union(vScores, fScores)))
	}
}

func union(a, b map[string]float64) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.NoError(t, Weights{}.Validate())
	assert.ErrorIs(t, Weights{Vector: -0.1, FullText: 1}.Validate(), types.ErrValidation)
	assert.ErrorIs(t, Weights{Vector: 1, FullText: math.NaN()}.Validate(), types.ErrValidation)
	assert.ErrorIs(t, Weights{Vector: math.Inf(1)}.Validate(), types.ErrValidation)
}
