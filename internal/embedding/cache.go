package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder keeps recent query embeddings in an LRU keyed by text. Document embeddings
// are passed through since each row is embedded once per ingestion.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) (*CachedEmbedder, error) {
	c, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: c}, nil
}

// EmbedDocuments delegates without caching.
func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedDocuments(ctx, texts)
}

// EmbedQuery returns the cached embedding for text or computes and stores it.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}

// Len returns the number of cached queries.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

// Purge drops every cached embedding. Call it when the embedding model changes.
func (c *CachedEmbedder) Purge() { c.cache.Purge() }

// Model returns the wrapped model name.
func (c *CachedEmbedder) Model() string { return c.inner.Model() }

// Close closes the wrapped embedder.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }
