package vector

import (
	"context"
	"fmt"
	"testing"
)

func benchIndex(b *testing.B, n, dims int) *MemoryIndex {
	b.Helper()
	idx, _ := NewMemoryIndex(dims)
	vecs := make([][]float32, n)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		vecs[i] = make([]float32, dims)
		vecs[i][0] = float32(i) / float32(n)
		vecs[i][i%dims] += 1
		ids[i] = fmt.Sprintf("row:%d", i)
	}
	if err := idx.Add(context.Background(), ids, vecs); err != nil {
		b.Fatal(err)
	}
	return idx
}

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx := benchIndex(b, 1000, 384)
	query := make([]float32, 384)
	query[0] = 1.0
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10)
	}
}

func BenchmarkMemoryIndexMMR(b *testing.B) {
	idx := benchIndex(b, 1000, 384)
	query := make([]float32, 384)
	query[1] = 1.0
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.MaxMarginalRelevance(ctx, query, 10, 20, 0.5)
	}
}
