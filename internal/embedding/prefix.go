package embedding

import (
	"context"

	"github.com/hyperjump/bunbetsu/internal/textnorm"
)

// PrefixedEmbedder normalizes text and applies role-specific prefixes (for example
// "passage: " and "query: " for E5-style models) before delegating.
type PrefixedEmbedder struct {
	inner         Embedder
	passagePrefix string
	queryPrefix   string
}

// NewPrefixedEmbedder wraps inner. Empty prefixes only normalize.
func NewPrefixedEmbedder(inner Embedder, passagePrefix, queryPrefix string) *PrefixedEmbedder {
	return &PrefixedEmbedder{inner: inner, passagePrefix: passagePrefix, queryPrefix: queryPrefix}
}

// EmbedDocuments embeds documents with the passage prefix.
func (p *PrefixedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	prepared := make([]string, len(texts))
	for i, t := range texts {
		prepared[i] = p.passagePrefix + textnorm.Normalize(t)
	}
	return p.inner.EmbedDocuments(ctx, prepared)
}

// EmbedQuery embeds a query with the query prefix.
func (p *PrefixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.inner.EmbedQuery(ctx, p.queryPrefix+textnorm.Normalize(text))
}

// Model returns the wrapped model name.
func (p *PrefixedEmbedder) Model() string { return p.inner.Model() }

// Close closes the wrapped embedder.
func (p *PrefixedEmbedder) Close() error { return p.inner.Close() }
