package search

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// Ladder rungs, in the order they are tried.
const (
	RungPrimary      = "primary"
	RungSemantic     = "semantic"
	RungMMR          = "mmr"
	RungItemSemantic = "item_semantic"
	RungItemMMR      = "item_mmr"
)

// Poor reports whether hits are too weak to answer from: empty, too few carrying a structured
// item field (fewer than max(1, floor(n*fraction))), or none matching itemPhrase.
func (r *Retriever) Poor(hits []*Hit, itemPhrase string) bool {
	if len(hits) == 0 {
		return true
	}
	withItem := 0
	matched := itemPhrase == ""
	for _, h := range hits {
		item := h.Document.Item()
		if item == "" {
			continue
		}
		withItem++
		if !matched && r.synonyms.MatchItem(item, itemPhrase) > 0 {
			matched = true
		}
	}
	threshold := math.Max(1, math.Floor(float64(len(hits))*r.cfg.PoorItemFraction))
	return float64(withItem) < threshold || !matched
}

// SearchWithLadder runs Search and, while the result is poor, retries semantic-only and then
// max-marginal-relevance search on the query, then both again on the item phrase. The first
// result that is not poor is returned with its rung; otherwise the last attempt is returned as-is.
// A failing attempt counts as an empty result.
func (r *Retriever) SearchWithLadder(ctx context.Context, query, itemPhrase string, k int) ([]*Hit, string) {
	type attempt struct {
		rung string
		run  func() ([]*Hit, error)
	}
	attempts := []attempt{
		{RungPrimary, func() ([]*Hit, error) { return r.Search(ctx, query, k) }},
		{RungSemantic, func() ([]*Hit, error) { return r.SemanticSearch(ctx, query, k) }},
		{RungMMR, func() ([]*Hit, error) { return r.MMRSearch(ctx, query, k) }},
	}
	if itemPhrase != "" && itemPhrase != query {
		attempts = append(attempts,
			attempt{RungItemSemantic, func() ([]*Hit, error) { return r.SemanticSearch(ctx, itemPhrase, k) }},
			attempt{RungItemMMR, func() ([]*Hit, error) { return r.MMRSearch(ctx, itemPhrase, k) }},
		)
	}

	var hits []*Hit
	var rung string
	for _, a := range attempts {
		if rung != "" && ctx.Err() != nil {
			break
		}
		res, err := a.run()
		if err != nil {
			r.logger.Warn("retrieval attempt failed", zap.String("rung", a.rung), zap.Error(err))
			res = nil
		}
		hits, rung = res, a.rung
		if !r.Poor(hits, itemPhrase) {
			break
		}
		r.logger.Debug("retrieval result poor", zap.String("rung", a.rung), zap.Int("hits", len(hits)))
	}
	r.observer.ObserveRung(rung)
	return hits, rung
}
