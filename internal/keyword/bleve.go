package keyword

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/textnorm"
)

const (
	analyzerName    = "ja_bigram"
	bigramFilter    = "cjk_bigram_unigram"
	fieldContent    = "content"
	fieldItem       = "item"
	indexedDocument = "rule"
)

// Retriever is an in-memory bleve index over a fixed corpus snapshot. It is never mutated after
// Build; corpus changes build a new Retriever.
type Retriever struct {
	index     bleve.Index
	docs      map[string]*models.Document
	itemBoost float64
}

type indexedRule struct {
	Content string `json:"content"`
	Item    string `json:"item"`
}

// BleveType keeps every indexed rule under one document mapping.
func (indexedRule) BleveType() string { return indexedDocument }

// buildMapping analyzes text as CJK bigrams plus unigrams, so single-kanji items such as 缶 still match.
func buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomTokenFilter(bigramFilter, map[string]interface{}{
		"type":           cjk.BigramName,
		"output_unigram": true,
	}); err != nil {
		return nil, fmt.Errorf("register bigram filter: %w", err)
	}
	if err := im.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []interface{}{cjk.WidthName, lowercase.Name, bigramFilter},
	}); err != nil {
		return nil, fmt.Errorf("register analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = analyzerName
	text.Store = false
	docMapping.AddFieldMappingsAt(fieldContent, text)
	docMapping.AddFieldMappingsAt(fieldItem, text)
	im.AddDocumentMapping(indexedDocument, docMapping)
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = analyzerName
	return im, nil
}

// Build indexes docs into a new in-memory retriever. It returns ErrCorpusTooSmall when the
// corpus has fewer than opts.MinDocs documents.
func Build(ctx context.Context, docs []*models.Document, opts Options) (*Retriever, error) {
	opts = opts.withDefaults()
	if len(docs) < opts.MinDocs {
		return nil, fmt.Errorf("%d documents: %w", len(docs), ErrCorpusTooSmall)
	}
	im, err := buildMapping()
	if err != nil {
		return nil, err
	}
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}

	byID := make(map[string]*models.Document, len(docs))
	batch := index.NewBatch()
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			_ = index.Close()
			return nil, err
		}
		item := d.Item()
		if item == "" {
			item = textnorm.ItemField(d.Content)
		}
		rule := indexedRule{
			Content: textnorm.Normalize(d.Content),
			Item:    textnorm.Normalize(item),
		}
		if err := batch.Index(d.ID, rule); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("index document %s: %w", d.ID, err)
		}
		byID[d.ID] = d
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("Bleve batch failed: %w", err)
	}
	return &Retriever{index: index, docs: byID, itemBoost: opts.ItemBoost}, nil
}

// Search returns up to k documents ranked by term-frequency score. Matches in the item field
// are boosted.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]*models.ScoredDocument, error) {
	query = strings.TrimSpace(textnorm.Normalize(query))
	if query == "" || k <= 0 {
		return nil, nil
	}
	content := bleve.NewMatchQuery(query)
	content.SetField(fieldContent)
	item := bleve.NewMatchQuery(query)
	item.SetField(fieldItem)
	item.SetBoost(r.itemBoost)
	var q blevequery.Query = bleve.NewDisjunctionQuery(content, item)

	req := bleve.NewSearchRequest(q)
	req.Size = k
	results, err := r.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*models.ScoredDocument, 0, len(results.Hits))
	for _, hit := range results.Hits {
		doc, ok := r.docs[hit.ID]
		if !ok {
			continue
		}
		out = append(out, &models.ScoredDocument{Document: doc, Score: hit.Score})
	}
	return out, nil
}

// DocCount returns the number of indexed documents.
func (r *Retriever) DocCount() int { return len(r.docs) }

// Close releases the index.
func (r *Retriever) Close() error { return r.index.Close() }
