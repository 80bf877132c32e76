package embedder

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeHash(tt.text); got != tt.want {
				t.Errorf("ComputeHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     EmbeddingRequest
		wantErr error
	}{
		{
			name:    "valid request",
			req:     EmbeddingRequest{Text: "quarterly revenue"},
			wantErr: nil,
		},
		{
			name:    "valid query input type",
			req:     EmbeddingRequest{Text: "quarterly revenue", InputType: InputTypeQuery},
			wantErr: nil,
		},
		{
			name:    "empty text",
			req:     EmbeddingRequest{Text: ""},
			wantErr: ErrEmptyText,
		},
		{
			name:    "unknown input type",
			req:     EmbeddingRequest{Text: "x", InputType: "passage"},
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     BatchEmbeddingRequest
		wantErr bool
	}{
		{
			name:    "valid batch",
			req:     BatchEmbeddingRequest{Texts: []string{"a", "b"}, InputType: InputTypeDocument},
			wantErr: false,
		},
		{
			name:    "empty batch",
			req:     BatchEmbeddingRequest{},
			wantErr: true,
		},
		{
			name:    "batch with empty text",
			req:     BatchEmbeddingRequest{Texts: []string{"a", ""}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBatchRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ValidateBatchRequest() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestLocalProvider(t *testing.T) {
	provider, err := NewLocalProvider(Config{})
	if err != nil {
		t.Fatalf("NewLocalProvider() error = %v", err)
	}
	defer provider.Close()

	t.Run("provider metadata", func(t *testing.T) {
		if provider.Provider() != ProviderLocal {
			t.Errorf("Provider() = %s, want %s", provider.Provider(), ProviderLocal)
		}
		if provider.Dimension() != LocalDimension {
			t.Errorf("Dimension() = %d, want %d", provider.Dimension(), LocalDimension)
		}
		if provider.Model() != DefaultLocalModel {
			t.Errorf("Model() = %s, want %s", provider.Model(), DefaultLocalModel)
		}
	})

	t.Run("deterministic unit vectors", func(t *testing.T) {
		ctx := context.Background()
		a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "annual report"})
		if err != nil {
			t.Fatalf("GenerateEmbedding() error = %v", err)
		}
		b, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "annual report"})
		if err != nil {
			t.Fatalf("GenerateEmbedding() error = %v", err)
		}

		if len(a.Vector) != LocalDimension {
			t.Fatalf("Vector dimension = %d, want %d", len(a.Vector), LocalDimension)
		}
		for i := range a.Vector {
			if a.Vector[i] != b.Vector[i] {
				t.Fatalf("component %d differs: %f != %f", i, a.Vector[i], b.Vector[i])
			}
		}

		var sum float64
		nonZero := 0
		for _, v := range a.Vector {
			sum += float64(v * v)
			if v != 0 {
				nonZero++
			}
		}
		if math.Abs(sum-1) > 1e-4 {
			t.Errorf("vector norm^2 = %f, want 1", sum)
		}
		if nonZero < LocalDimension/2 {
			t.Errorf("only %d non-zero components", nonZero)
		}
	})

	t.Run("different texts differ", func(t *testing.T) {
		ctx := context.Background()
		a, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "alpha"})
		b, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "beta"})
		same := true
		for i := range a.Vector {
			if a.Vector[i] != b.Vector[i] {
				same = false
				break
			}
		}
		if same {
			t.Error("different texts produced identical vectors")
		}
	})

	t.Run("custom dimension", func(t *testing.T) {
		p, err := NewLocalProvider(Config{Dimension: 8})
		if err != nil {
			t.Fatalf("NewLocalProvider() error = %v", err)
		}
		emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		if err != nil {
			t.Fatalf("GenerateEmbedding() error = %v", err)
		}
		if len(emb.Vector) != 8 || emb.Dimension != 8 {
			t.Errorf("dimension = %d/%d, want 8", len(emb.Vector), emb.Dimension)
		}
	})

	t.Run("batch embedding", func(t *testing.T) {
		resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
			Texts: []string{"text1", "text2", "text3"},
		})
		if err != nil {
			t.Fatalf("GenerateBatch() error = %v", err)
		}
		if len(resp.Embeddings) != 3 {
			t.Errorf("Got %d embeddings, want 3", len(resp.Embeddings))
		}
		for i, emb := range resp.Embeddings {
			if emb.Hash != ComputeHash([]string{"text1", "text2", "text3"}[i]) {
				t.Errorf("Embedding %d has wrong hash", i)
			}
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a"}}); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name  string
		input []float32
		want  []float32
	}{
		{name: "unit x", input: []float32{3, 0}, want: []float32{1, 0}},
		{name: "3-4-5", input: []float32{3, 4}, want: []float32{0.6, 0.8}},
		{name: "zero vector unchanged", input: []float32{0, 0}, want: []float32{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeVector(tt.input)
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("NormalizeVector()[%d] = %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}
}
