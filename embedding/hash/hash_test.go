package hash

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semembed/embedding"
)

func TestEmbedDeterministic(t *testing.T) {
	s := New(3)
	first, err := s.Embed(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	second, err := s.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Len(t, first[0], 3)
	assert.Equal(t, first[0], second[0])
	assert.NotEqual(t, first[0], first[1])
}

func TestEmbedNormalized(t *testing.T) {
	vecs, err := New(64).Embed(context.Background(), []string{"some text", ""})
	require.NoError(t, err)
	for _, v := range vecs {
		var sum float64
		for _, f := range v {
			sum += float64(f) * float64(f)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
	}
}

func TestLoad(t *testing.T) {
	h, err := Load(context.Background(), embedding.Definition{ID: "m1", Backend: "hash", Dimensions: 8, MaxBatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, "m1", h.ID)
	assert.Equal(t, 8, h.Dimensions)
	assert.Equal(t, 2, h.MaxBatchSize)
	assert.Equal(t, 1, h.Backend.TokenCount("hello"))
}

func TestDefaultDimensions(t *testing.T) {
	assert.Equal(t, defaultDimensions, New(0).Dimensions())
}
