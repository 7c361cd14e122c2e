// Package keyword provides the lexical (term-frequency) retriever over the document corpus.
package keyword

import (
	"context"
	"errors"

	"github.com/hyperjump/bunbetsu/internal/models"
)

// ErrCorpusTooSmall is returned by Build when there are fewer documents than the configured minimum.
var ErrCorpusTooSmall = errors.New("corpus too small for lexical retrieval")

// Searcher ranks documents by term frequency against a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]*models.ScoredDocument, error)
	DocCount() int
	Close() error
}

// Options tune the lexical retriever. Zero values take defaults.
type Options struct {
	// MinDocs is the smallest corpus the retriever is built for. Default 1.
	MinDocs int
	// ItemBoost multiplies matches in the structured item field. Default 2.0.
	ItemBoost float64
}

func (o Options) withDefaults() Options {
	if o.MinDocs <= 0 {
		o.MinDocs = 1
	}
	if o.ItemBoost <= 0 {
		o.ItemBoost = 2.0
	}
	return o
}
