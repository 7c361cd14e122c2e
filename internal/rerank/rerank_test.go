package rerank

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/hyperjump/bunbetsu/internal/config"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/search"
	"github.com/hyperjump/bunbetsu/internal/textnorm"
)

func rule(id, item, how string) *models.Document {
	return &models.Document{
		ID:      id,
		Content: "品目: " + item + "\n出し方: " + how,
		Metadata: map[string]string{
			models.MetaSource: "gomi.csv",
			models.MetaItem:   item,
			models.MetaHow:    how,
		},
	}
}

// scripted returns fixed hits per variant and records the variants it saw.
type scripted struct {
	hits  map[string][]*search.Hit
	seen  []string
	items []string
}

func (s *scripted) SearchWithLadder(ctx context.Context, query, item string, k int) ([]*search.Hit, string) {
	s.seen = append(s.seen, query)
	s.items = append(s.items, item)
	return s.hits[query], search.RungPrimary
}

func newReranker(r Retriever) *Reranker {
	cfg := config.Default()
	return New(r, textnorm.DefaultTable(), cfg.Rerank, cfg.Retrieval)
}

func TestNormalizeSemantic(t *testing.T) {
	for _, v := range []float64{0, 0.25, 0.5, 1} {
		if got := NormalizeSemantic(v); got != v {
			t.Errorf("NormalizeSemantic(%f) = %f, want identity", v, got)
		}
	}
	prev := math.Inf(1)
	for _, v := range []float64{1.01, 1.5, 2.0, 2.5} {
		got := NormalizeSemantic(v)
		if got >= prev {
			t.Errorf("not strictly decreasing at %f: %f >= %f", v, got, prev)
		}
		if math.Abs(got-1/(1+v)) > 1e-12 {
			t.Errorf("NormalizeSemantic(%f) = %f", v, got)
		}
		prev = got
	}
	for _, v := range []float64{-0.1, 2.51, 100, math.NaN(), math.Inf(1)} {
		if got := NormalizeSemantic(v); got != 0 {
			t.Errorf("NormalizeSemantic(%f) = %f, want 0", v, got)
		}
	}
}

func TestDedupe_Idempotent(t *testing.T) {
	a := rule("a", "缶", "資源")
	aCopy := rule("a2", "缶", "資源")
	aCopy.Metadata = map[string]string{models.MetaSource: "gomi.csv", models.MetaItem: "缶", models.MetaHow: "資源"}
	aCopy.Content = " " + a.Content + "\n"
	b := rule("b", "びん", "資源")
	bOther := rule("b", "びん", "資源")
	bOther.Metadata = map[string]string{models.MetaSource: "other.csv", models.MetaItem: "びん", models.MetaHow: "資源"}

	once := Dedupe([]*models.Document{a, aCopy, b, bOther, b})
	if len(once) != 3 {
		t.Fatalf("Dedupe kept %d, want 3", len(once))
	}
	if once[0] != a {
		t.Error("first occurrence should be kept")
	}
	twice := Dedupe(once)
	if !reflect.DeepEqual(once, twice) {
		t.Error("Dedupe is not idempotent")
	}
}

func TestLexicalScore(t *testing.T) {
	r := newReranker(&scripted{})
	tests := []struct {
		name string
		doc  *models.Document
		item string
		want float64
	}{
		{"exact", rule("1", "アルミ缶", "つぶす"), "アルミ缶", 3 + 0.1},
		{"synonym", rule("2", "テレビ", "家電"), "TV", 2},
		{"substring", rule("3", "スプレー缶", "穴を開けない"), "スプレー", 1 + 0.1},
		{"none", rule("4", "冷蔵庫", "家電"), "電池", 0},
		{"empty item", rule("5", "冷蔵庫", "家電"), "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.LexicalScore(tt.doc, tt.item); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("LexicalScore = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestLexicalScore_OccurrenceBonusCapped(t *testing.T) {
	r := newReranker(&scripted{})
	doc := rule("x", "びん", "")
	for i := 0; i < 30; i++ {
		doc.Content += "びん"
	}
	got := r.LexicalScore(doc, "びん")
	if math.Abs(got-4.0) > 1e-9 {
		t.Errorf("score = %f, want exact 3 plus capped bonus 1.0", got)
	}
}

func TestRerank_MergesVariantsAndRanksItemMatch(t *testing.T) {
	tv := rule("tv", "テレビ", "家電リサイクル")
	fridge := rule("fridge", "冷蔵庫", "家電リサイクル")
	s := &scripted{hits: map[string][]*search.Hit{
		"テレビは何ごみ?": {
			{Document: fridge, Semantic: 0.9},
			{Document: tv, Semantic: 0.4},
		},
		"TVは何ごみ?": {
			{Document: tv, Semantic: 0.8},
		},
	}}
	r := newReranker(s)
	got := r.Rerank(context.Background(), "テレビは何ごみ？", 10)

	if len(s.seen) < 2 {
		t.Fatalf("expected synonym variants to be retrieved, saw %v", s.seen)
	}
	for _, item := range s.items {
		if item != "テレビ" {
			t.Errorf("item phrase = %q, want テレビ", item)
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deduplicated candidates, got %d", len(got))
	}
	if got[0].Document.ID != "tv" {
		t.Errorf("top = %s, want tv", got[0].Document.ID)
	}
	if got[0].LexicalScore < 3 {
		t.Errorf("tv lexical = %f", got[0].LexicalScore)
	}
	want := 0.65*got[0].LexicalScore + 0.35*got[0].SemanticScore
	if math.Abs(got[0].CombinedScore-want) > 1e-9 {
		t.Errorf("combined = %f, want %f", got[0].CombinedScore, want)
	}
}

func TestRerank_Deterministic(t *testing.T) {
	docs := []*models.Document{
		rule("c", "びん", "資源"), rule("a", "びん", "資源2"), rule("b", "びん", "資源3"),
	}
	hits := []*search.Hit{{Document: docs[0], Semantic: 0.5}, {Document: docs[1], Semantic: 0.5}, {Document: docs[2], Semantic: 0.5}}
	s := &scripted{hits: map[string][]*search.Hit{}}
	for _, v := range textnorm.DefaultTable().Expand("びん") {
		s.hits[v] = hits
	}
	r := newReranker(s)
	first := r.Rerank(context.Background(), "びん", 10)
	for i := 0; i < 5; i++ {
		again := r.Rerank(context.Background(), "びん", 10)
		for j := range first {
			if first[j].Document.ID != again[j].Document.ID {
				t.Fatalf("run %d differs at %d", i, j)
			}
		}
	}
	if first[0].Document.ID != "a" || first[1].Document.ID != "b" || first[2].Document.ID != "c" {
		t.Errorf("ties should break by id: %s %s %s", first[0].Document.ID, first[1].Document.ID, first[2].Document.ID)
	}
}

func TestRerank_TruncatesAndHandlesEmpty(t *testing.T) {
	var hits []*search.Hit
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		hits = append(hits, &search.Hit{Document: rule(id, "品"+id, "x")})
	}
	r := newReranker(&scripted{hits: map[string][]*search.Hit{"何か": hits}})
	if got := r.Rerank(context.Background(), "何か", 5); len(got) != 5 {
		t.Errorf("got %d candidates, want 5", len(got))
	}
	if got := r.Rerank(context.Background(), "   ", 5); got != nil {
		t.Errorf("blank query should yield nil, got %v", got)
	}
	empty := newReranker(&scripted{})
	if got := empty.Rerank(context.Background(), "電池", 5); len(got) != 0 {
		t.Errorf("empty corpus should yield no candidates, got %d", len(got))
	}
}
