// Package models defines core data structures for rule documents, candidates, and query results.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hyperjump/bunbetsu/internal/textnorm"
)

// Metadata keys carried by every ingested document.
const (
	MetaSource = "source"
	MetaID     = "id"
	MetaRow    = "row"
	MetaItem   = "item"
	MetaHow    = "how"
	MetaNote   = "note"
	MetaArea   = "area"
)

// Document is one indexed disposal rule (a tabular row) or one whole text file.
type Document struct {
	ID        string            `json:"id" db:"id"`
	Content   string            `json:"content" db:"content"`
	Metadata  map[string]string `json:"metadata" db:"metadata"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// Source returns the basename of the file the document was ingested from.
func (d *Document) Source() string {
	return d.Meta(MetaSource)
}

// Meta returns the trimmed metadata value for key, or "" when absent.
func (d *Document) Meta(key string) string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(d.Metadata[key])
}

// Item returns the structured item field, falling back to the item line of the content.
func (d *Document) Item() string {
	if v := d.Meta(MetaItem); v != "" {
		return v
	}
	if d == nil {
		return ""
	}
	return textnorm.ItemField(d.Content)
}

// How returns the structured how-to-dispose field.
func (d *Document) How() string { return d.Meta(MetaHow) }

// Note returns the structured note field.
func (d *Document) Note() string { return d.Meta(MetaNote) }

// DedupKey identifies a document by its trimmed content and serialized metadata.
// encoding/json sorts map keys, so equal metadata always serializes identically.
func (d *Document) DedupKey() string {
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		meta = nil
	}
	return strings.TrimSpace(d.Content) + "\x00" + string(meta)
}

// ScoredDocument pairs a document with the raw score reported by the store.
type ScoredDocument struct {
	Document *Document `json:"document"`
	Score    float64   `json:"score"`
}

// Manifest records which embedding configuration produced the persisted index.
type Manifest struct {
	EmbeddingModel string    `json:"embedding_model"`
	StrategyTag    string    `json:"strategy_tag"`
	CreatedAt      time.Time `json:"created_at"`
}

// Matches reports whether m was produced by the given embedding configuration.
func (m *Manifest) Matches(embeddingModel, strategyTag string) bool {
	return m != nil && m.EmbeddingModel == embeddingModel && m.StrategyTag == strategyTag
}

// IngestResult summarizes one file ingestion.
type IngestResult struct {
	Source    string `json:"source"`
	Documents int    `json:"documents"`
	Skipped   int    `json:"skipped_rows"`
}
