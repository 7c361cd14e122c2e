// Package search provides the hybrid retriever: weighted fusion of semantic and lexical results,
// degradation to semantic-only search, and the retry ladder for poor results.
package search

import (
	"sort"

	"github.com/hyperjump/bunbetsu/internal/models"
)

// Hit is one retrieved document with its fused score and the per-leg scores it was built from.
type Hit struct {
	Document *models.Document
	Score    float64
	Semantic float64
	Lexical  float64
}

// NormalizeLexicalScores normalizes term-frequency scores to [0,1] by max.
func NormalizeLexicalScores(results []*models.ScoredDocument) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.Document.ID] = r.Score / maxScore
		} else {
			normalized[r.Document.ID] = 0
		}
	}
	return normalized
}

// NormalizeSemanticScores returns semantic scores as-is (cosine similarity is already in [0,1]).
func NormalizeSemanticScores(results []*models.ScoredDocument) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	for _, r := range results {
		normalized[r.Document.ID] = r.Score
	}
	return normalized
}

// Fuse merges the two legs as semanticWeight*semantic + lexicalWeight*lexical and sorts by the
// fused score descending, breaking ties by document ID.
func Fuse(semantic, lexical []*models.ScoredDocument, semanticWeight, lexicalWeight float64) []*Hit {
	semScores := NormalizeSemanticScores(semantic)
	lexScores := NormalizeLexicalScores(lexical)

	byID := make(map[string]*Hit, len(semantic)+len(lexical))
	for _, r := range semantic {
		byID[r.Document.ID] = &Hit{Document: r.Document, Semantic: semScores[r.Document.ID]}
	}
	for _, r := range lexical {
		if h, ok := byID[r.Document.ID]; ok {
			h.Lexical = lexScores[r.Document.ID]
			continue
		}
		byID[r.Document.ID] = &Hit{Document: r.Document, Lexical: lexScores[r.Document.ID]}
	}

	hits := make([]*Hit, 0, len(byID))
	for _, h := range byID {
		h.Score = semanticWeight*h.Semantic + lexicalWeight*h.Lexical
		hits = append(hits, h)
	}
	SortHits(hits)
	return hits
}

// SortHits orders hits by score descending, then by document ID.
func SortHits(hits []*Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Document.ID < hits[j].Document.ID
	})
}

// semanticHits wraps single-leg semantic results, keeping their order.
func semanticHits(results []*models.ScoredDocument) []*Hit {
	hits := make([]*Hit, len(results))
	for i, r := range results {
		hits[i] = &Hit{Document: r.Document, Score: r.Score, Semantic: r.Score}
	}
	return hits
}
