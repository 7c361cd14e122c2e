// Package embedding provides text embedding providers, role prefixes and query caching.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/config"
	"github.com/hyperjump/bunbetsu/internal/ollama"
)

// Embedder produces vector embeddings for text. Documents and queries may be embedded
// differently (for example with role prefixes).
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Model names the embedding model; it is recorded in the index manifest.
	Model() string
	Close() error
}

// New builds the embedder described by cfg: provider, then role prefixes, then the query cache.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var base Embedder
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		base = NewOllamaEmbedder(ollama.New(cfg.BaseURL, 0), cfg.Model)
	case "openai":
		base = NewOpenAIEmbedder(&OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Logger:     logger,
		})
	case "mock":
		base = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: ollama, openai, mock)", cfg.Provider)
	}
	e := NewPrefixedEmbedder(base, cfg.PassagePrefix, cfg.QueryPrefix)
	if cfg.CacheSize > 0 {
		cached, err := NewCachedEmbedder(e, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return cached, nil
	}
	return e, nil
}
