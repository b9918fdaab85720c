package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosineSimilarity_LengthMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarity_SelfIsOne(t *testing.T) {
	e := NewMockEmbedder(64)
	for _, text := range []string{"alpha", "teorema di Pitagora", "x"} {
		r, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		got, err := CosineSimilarity(r.Vector, r.Vector)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got, 1e-6)
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	a, err := e.Embed(context.Background(), "same text")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "same text")
	require.NoError(t, err)
	assert.Equal(t, a.Vector, b.Vector)
	assert.Len(t, a.Vector, 16)

	batch, err := e.EmbedBatch(context.Background(), []string{"a", "", "b"})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, 2, batch[1].Index)
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}
