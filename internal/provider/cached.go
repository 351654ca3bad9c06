package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize bounds memory use: at 768 dims * 4 bytes, 1000 entries
// is roughly 3 MB.
const defaultCacheSize = 1000

// CachedEmbeddingProvider wraps an EmbeddingProvider with an LRU cache
// keyed by text content, so identical chunk text (duplicate boilerplate
// across files) is embedded once regardless of which chunk hash requests
// it.
type CachedEmbeddingProvider struct {
	inner EmbeddingProvider
	model string
	cache *lru.Cache[string, []float32]
}

var _ EmbeddingProvider = (*CachedEmbeddingProvider)(nil)

// NewCachedEmbeddingProvider wraps inner with an LRU cache of the given
// size (0 uses defaultCacheSize). model disambiguates the cache key so
// switching providers doesn't serve stale vectors from a different model.
func NewCachedEmbeddingProvider(inner EmbeddingProvider, model string, cacheSize int) *CachedEmbeddingProvider {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbeddingProvider{inner: inner, model: model, cache: cache}
}

func (c *CachedEmbeddingProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.model))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(t)); ok {
			results[i] = vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	}
	if len(missTexts) == 0 {
		return results, nil
	}
	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		results[idx] = fresh[j]
		c.cache.Add(c.cacheKey(texts[idx]), fresh[j])
	}
	return results, nil
}

func (c *CachedEmbeddingProvider) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbeddingProvider) Close() error { return c.inner.Close() }
