package rerank

import (
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/search"
)

// Dedupe keeps the first occurrence of each document by trimmed content and serialized metadata.
func Dedupe(docs []*models.Document) []*models.Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]*models.Document, 0, len(docs))
	for _, d := range docs {
		key := d.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}

// DedupeHits is Dedupe over retrieval hits.
func DedupeHits(hits []*search.Hit) []*search.Hit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]*search.Hit, 0, len(hits))
	for _, h := range hits {
		key := h.Document.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}
