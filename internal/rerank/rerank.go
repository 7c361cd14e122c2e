// Package rerank merges retrieval results across synonym variants of a query and orders them by
// how well each document's item matches the queried item.
package rerank

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/config"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/search"
	"github.com/hyperjump/bunbetsu/internal/textnorm"
)

// Retriever is the retrieval chain one query variant runs through.
type Retriever interface {
	SearchWithLadder(ctx context.Context, query, itemPhrase string, k int) ([]*search.Hit, string)
}

// Reranker scores and orders candidates for a query.
type Reranker struct {
	retriever Retriever
	synonyms  *textnorm.SynonymTable
	cfg       config.RerankConfig
	retrieval config.RetrievalConfig
	logger    *zap.Logger
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithLogger sets the reranker logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reranker) { r.logger = l }
}

// New returns a reranker. A nil synonym table disables variant expansion and synonym grading.
func New(retriever Retriever, synonyms *textnorm.SynonymTable, cfg config.RerankConfig, retrieval config.RetrievalConfig, opts ...Option) *Reranker {
	r := &Reranker{
		retriever: retriever,
		synonyms:  synonyms,
		cfg:       cfg,
		retrieval: retrieval,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank retrieves for every synonym variant of the normalized query, deduplicates the union,
// scores each document against the extracted item phrase and returns at most k candidates,
// best first.
func (r *Reranker) Rerank(ctx context.Context, query string, k int) []*models.Candidate {
	k = r.retrieval.ClampK(k)
	q := textnorm.Normalize(query)
	if q == "" {
		return nil
	}
	item := textnorm.ExtractItemPhrase(q, r.retrieval.ItemPhraseMaxRunes)

	variants := []string{q}
	if r.synonyms != nil {
		variants = r.synonyms.Expand(q)
	}
	if max := r.cfg.MaxVariants; max > 0 && len(variants) > max {
		variants = variants[:max]
	}

	var hits []*search.Hit
	for _, v := range variants {
		res, rung := r.retriever.SearchWithLadder(ctx, v, item, k)
		r.logger.Debug("variant retrieved",
			zap.String("variant", v),
			zap.String("rung", rung),
			zap.Int("hits", len(res)),
		)
		hits = append(hits, res...)
	}
	hits = DedupeHits(hits)

	candidates := make([]*models.Candidate, len(hits))
	for i, h := range hits {
		lex := r.LexicalScore(h.Document, item)
		sem := NormalizeSemantic(h.Semantic)
		candidates[i] = &models.Candidate{
			Document:      h.Document,
			LexicalScore:  lex,
			SemanticScore: sem,
			CombinedScore: r.cfg.LexicalWeight*lex + r.cfg.SemanticWeight*sem,
			Order:         i,
		}
	}
	Sort(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	r.logger.Debug("reranked",
		zap.String("query", q),
		zap.String("item", item),
		zap.Int("variants", len(variants)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates
}

// LexicalScore grades doc's item field against item (exact 3, synonym 2, substring 1) and adds
// OccurrenceBonus per occurrence of item in the document text, capped at MaxOccurrenceBonus.
func (r *Reranker) LexicalScore(doc *models.Document, item string) float64 {
	item = textnorm.Normalize(item)
	if item == "" {
		return 0
	}
	grade := float64(r.synonyms.MatchItem(doc.Item(), item))
	occurrences := strings.Count(textnorm.Normalize(doc.Content), item)
	bonus := math.Min(r.cfg.MaxOccurrenceBonus, r.cfg.OccurrenceBonus*float64(occurrences))
	return grade + bonus
}

// NormalizeSemantic maps a raw store score to [0,1], higher is better. Values in [0,1] are
// similarities and pass through; values in (1, 2.5] are distances mapped by 1/(1+raw);
// anything else is an unknown scale and scores 0.
func NormalizeSemantic(raw float64) float64 {
	switch {
	case math.IsNaN(raw):
		return 0
	case raw >= 0 && raw <= 1:
		return raw
	case raw > 1 && raw <= 2.5:
		return 1 / (1 + raw)
	default:
		return 0
	}
}

// Sort orders candidates by combined score descending, then document ID, then retrieval order.
func Sort(candidates []*models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.Document.ID != b.Document.ID {
			return a.Document.ID < b.Document.ID
		}
		return a.Order < b.Order
	})
}
