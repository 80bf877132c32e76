package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

func TestVectorSerialization(t *testing.T) {
	vectors := [][]float32{
		{},
		{1},
		{0.1, -0.2, 3.5, float32(math.Inf(1))},
	}
	for _, v := range vectors {
		assert.Equal(t, v, deserializeVector(serializeVector(v)))
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestFTSMatchExpression(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"refund policy", `"refund" OR "policy"`},
		{`a "quoted" (group)*`, `"a" OR "quoted" OR "group"`},
		{"snake_case AND x", `"snake_case" OR "AND" OR "x"`},
		{"   ", ""},
		{"-*^", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ftsMatchExpression(tt.query), tt.query)
	}
}

func TestTSQueryExpression(t *testing.T) {
	assert.Equal(t, "refund | policy", tsQueryExpression("refund, policy!"))
	assert.Equal(t, "", tsQueryExpression("&|!"))
}

func TestScopeFilter(t *testing.T) {
	where, args := scopeFilter(types.Scope{UserID: "u1"})
	assert.Equal(t, "d.owner_id = ?", where)
	assert.Equal(t, []interface{}{"u1"}, args)

	where, args = scopeFilter(types.Scope{UserID: "u1", DocumentIDs: []string{"a", "b"}})
	assert.Equal(t, "d.owner_id = ? AND c.document_id IN (?,?)", where)
	assert.Equal(t, []interface{}{"u1", "a", "b"}, args)
}

func TestAllowList(t *testing.T) {
	assert.NotNil(t, allowList(types.Scope{}))
	assert.Equal(t, []string{"x"}, allowList(types.Scope{DocumentIDs: []string{"x"}}))
}
