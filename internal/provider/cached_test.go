package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls int
	fn    func(texts []string) [][]float32
}

func (c *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return c.fn(texts), nil
}
func (c *countingProvider) Dimensions() int { return 2 }
func (c *countingProvider) Close() error    { return nil }

func TestCachedEmbeddingProvider_CachesRepeatedText(t *testing.T) {
	inner := &countingProvider{fn: func(texts []string) [][]float32 {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{float32(len(texts[i])), 0}
		}
		return out
	}}
	c := NewCachedEmbeddingProvider(inner, "model-a", 10)

	v1, err := c.Embed(context.Background(), []string{"hello", "hello"})
	require.NoError(t, err)
	assert.Equal(t, v1[0], v1[1])
	assert.Equal(t, 1, inner.calls, "first call always reaches inner regardless of in-batch duplicates")

	_, err = c.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "repeated text across calls should hit cache")

	_, err = c.Embed(context.Background(), []string{"world"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "new text should miss cache and call inner")
}

func TestCachedEmbeddingProvider_DifferentModelsDoNotShareCache(t *testing.T) {
	inner := &countingProvider{fn: func(texts []string) [][]float32 {
		return [][]float32{{1, 2}}
	}}
	a := NewCachedEmbeddingProvider(inner, "model-a", 10)
	b := NewCachedEmbeddingProvider(inner, "model-b", 10)

	_, err := a.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	_, err = b.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
