package embedding

import (
	"context"
	"hash/fnv"

	"github.com/hyperjump/bunbetsu/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. It hashes character
// unigrams and bigrams into a fixed number of buckets, so texts sharing characters get similar
// vectors and the same text always gets the same embedding.
type MockEmbedder struct {
	dimensions int
	calls      int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (e *MockEmbedder) embed(text string) []float32 {
	emb := make([]float32, e.dimensions)
	runes := []rune(text)
	bucket := func(s string) int {
		h := fnv.New32a()
		_, _ = h.Write([]byte(s))
		return int(h.Sum32() % uint32(e.dimensions))
	}
	for i, r := range runes {
		emb[bucket(string(r))] += 1
		if i+1 < len(runes) {
			emb[bucket(string(runes[i:i+2]))] += 2
		}
	}
	utils.NormalizeL2(emb)
	return emb
}

// EmbedDocuments embeds each text.
func (e *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

// EmbedQuery embeds one text.
func (e *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return e.embed(text), nil
}

// Calls returns how many embedding requests were served.
func (e *MockEmbedder) Calls() int { return e.calls }

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int { return e.dimensions }

// Model returns a fixed model name.
func (e *MockEmbedder) Model() string { return "mock" }

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error { return nil }
