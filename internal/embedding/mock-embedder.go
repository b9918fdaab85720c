package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/pkg/utils"
)

// MockEmbedder is a deterministic offline embedder for tests and local development.
// The same text always gets the same unit-length vector.
type MockEmbedder struct {
	model      string
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{model: "mock-embedding", dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.NewValidationError("text cannot be empty")
	}
	h := hashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return &Result{
		Vector: emb,
		Model:  e.model,
		Usage:  Usage{Tokens: models.EstimateTokens(text)},
	}, nil
}

// EmbedBatch calls Embed for each non-blank text, keeping input positions in Index.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*Result, error) {
	results := make([]*Result, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		r, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		r.Index = i
		results = append(results, r)
	}
	return results, nil
}

func (e *MockEmbedder) IsConfigured() bool { return true }

func (e *MockEmbedder) Model() string { return e.model }

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

func hashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % 100003)
}
