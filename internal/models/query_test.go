package models

import (
	"testing"
	"time"
)

func TestQueryRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *QueryRequest
		wantErr bool
		wantK   int
	}{
		{"empty query", &QueryRequest{Query: ""}, true, 0},
		{"whitespace only", &QueryRequest{Query: "  \t"}, true, 0},
		{"valid query", &QueryRequest{Query: "アルミ缶の捨て方"}, false, 0},
		{"keeps k", &QueryRequest{Query: "x", K: 7}, false, 7},
		{"negative k resets", &QueryRequest{Query: "x", K: -3}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.K != tt.wantK {
				t.Errorf("K = %d, want %d", tt.query.K, tt.wantK)
			}
		})
	}
}

func TestDocument_DedupKey(t *testing.T) {
	a := &Document{Content: " 品目: 缶 \n", Metadata: map[string]string{"source": "a.csv", "item": "缶"}}
	b := &Document{Content: "品目: 缶", Metadata: map[string]string{"item": "缶", "source": "a.csv"}}
	if a.DedupKey() != b.DedupKey() {
		t.Errorf("keys differ: %q vs %q", a.DedupKey(), b.DedupKey())
	}
	c := &Document{Content: "品目: 缶", Metadata: map[string]string{"item": "缶", "source": "b.csv"}}
	if a.DedupKey() == c.DedupKey() {
		t.Error("documents from different sources should not share a key")
	}
}

func TestDocument_MetaAccessors(t *testing.T) {
	var nilDoc *Document
	if nilDoc.Item() != "" {
		t.Error("nil document should have empty item")
	}
	d := &Document{Metadata: map[string]string{MetaItem: " アルミ缶 ", MetaHow: "資源化物", MetaSource: "gomi.csv"}}
	if d.Item() != "アルミ缶" || d.How() != "資源化物" || d.Source() != "gomi.csv" || d.Note() != "" {
		t.Errorf("unexpected accessors: %q %q %q %q", d.Item(), d.How(), d.Source(), d.Note())
	}
}

func TestManifest_Matches(t *testing.T) {
	m := &Manifest{EmbeddingModel: "X", StrategyTag: "e5-prefix", CreatedAt: time.Now()}
	if !m.Matches("X", "e5-prefix") {
		t.Error("expected match")
	}
	if m.Matches("Y", "e5-prefix") || m.Matches("X", "plain") {
		t.Error("expected mismatch")
	}
	var missing *Manifest
	if missing.Matches("X", "e5-prefix") {
		t.Error("nil manifest never matches")
	}
}
