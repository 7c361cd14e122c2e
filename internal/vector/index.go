// Package vector provides the semantic vector index and similarity search.
package vector

import "context"

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	MaxMarginalRelevance(ctx context.Context, query []float32, k, fetchK int, lambda float64) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Reset() error
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Close() error
}

// VectorResult is a single vector search hit keyed by document ID.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity clamped to [0, 1]
}

// FileName is the vector index file inside the index directory.
const FileName = "vectors.bin"
