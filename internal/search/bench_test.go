package search

import (
	"fmt"
	"testing"

	"github.com/hyperjump/bunbetsu/internal/models"
)

func BenchmarkFuse(b *testing.B) {
	semantic := make([]*models.ScoredDocument, 0, 100)
	lexical := make([]*models.ScoredDocument, 0, 100)
	for i := 0; i < 100; i++ {
		doc := &models.Document{ID: fmt.Sprintf("row:%03d", i)}
		semantic = append(semantic, &models.ScoredDocument{Document: doc, Score: float64(i) / 100})
		lexical = append(lexical, &models.ScoredDocument{Document: doc, Score: float64(100-i) / 10})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Fuse(semantic, lexical, 0.6, 0.4)
	}
}
