package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/bunbetsu/internal/config"
	"github.com/hyperjump/bunbetsu/internal/keyword"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/textnorm"
)

// Search modes reported by Info.
const (
	ModeHybrid   = "hybrid"
	ModeSemantic = "semantic"
)

// Store is the semantic side of retrieval and the corpus the lexical side is built from.
type Store interface {
	SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]*models.ScoredDocument, error)
	MaxMarginalRelevanceSearchWithScore(ctx context.Context, query string, k, fetchK int, lambda float64) ([]*models.ScoredDocument, error)
	LexicalSource(ctx context.Context, opts keyword.Options) (*keyword.Retriever, error)
	Count(ctx context.Context) (int, error)
}

// Observer receives retrieval events for metrics.
type Observer interface {
	ObserveRetrieval(mode string, duration time.Duration, err error)
	ObserveRung(rung string)
}

type nopObserver struct{}

func (nopObserver) ObserveRetrieval(string, time.Duration, error) {}
func (nopObserver) ObserveRung(string)                            {}

// snapshot is an immutable view of the retrievers. A nil lexical means semantic-only.
// Queries hold a reference while they search; a retired snapshot closes its lexical index once
// the last reference is released.
type snapshot struct {
	lexical  keyword.Searcher
	docCount int
	builtAt  time.Time

	refs      atomic.Int64
	retired   atomic.Bool
	closeOnce sync.Once
}

func (s *snapshot) release() {
	if s.refs.Add(-1) == 0 && s.retired.Load() {
		s.close()
	}
}

func (s *snapshot) retire() {
	s.retired.Store(true)
	if s.refs.Load() == 0 {
		s.close()
	}
}

func (s *snapshot) close() {
	s.closeOnce.Do(func() {
		if s.lexical != nil {
			_ = s.lexical.Close()
		}
	})
}

// Retriever is the hybrid retriever. Rebuild publishes a new snapshot atomically; a query
// acquires the snapshot once and uses it throughout.
type Retriever struct {
	store    Store
	cfg      config.RetrievalConfig
	synonyms *textnorm.SynonymTable
	logger   *zap.Logger
	observer Observer
	snap     atomic.Pointer[snapshot]
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the retriever logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(r *Retriever) { r.observer = o }
}

// WithSynonyms sets the table used when judging whether results match the queried item.
func WithSynonyms(t *textnorm.SynonymTable) Option {
	return func(r *Retriever) { r.synonyms = t }
}

// NewRetriever returns a retriever over store. It serves semantic-only results until the first Rebuild.
func NewRetriever(store Store, cfg config.RetrievalConfig, opts ...Option) *Retriever {
	r := &Retriever{
		store:    store,
		cfg:      cfg,
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(&snapshot{})
	return r
}

// Rebuild builds a new lexical retriever from the full corpus off to the side and swaps it in.
// A corpus too small for lexical retrieval publishes a semantic-only snapshot. In-flight queries
// keep the snapshot they started with.
func (r *Retriever) Rebuild(ctx context.Context) error {
	count, err := r.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	next := &snapshot{docCount: count, builtAt: time.Now()}
	lexical, err := r.store.LexicalSource(ctx, keyword.Options{MinDocs: r.cfg.MinLexicalDocs})
	switch {
	case err == nil:
		next.lexical = lexical
		next.docCount = lexical.DocCount()
	case errors.Is(err, keyword.ErrCorpusTooSmall):
		r.logger.Warn("lexical retriever unavailable, serving semantic-only", zap.Int("documents", count))
	default:
		r.logger.Warn("lexical retriever build failed, serving semantic-only", zap.Error(err))
	}
	r.snap.Swap(next).retire()
	r.logger.Info("retriever rebuilt",
		zap.Int("documents", next.docCount),
		zap.Bool("hybrid", next.lexical != nil),
	)
	return nil
}

// acquire returns the current snapshot with a reference held. A snapshot swapped out between
// the load and the increment is released and the load retried.
func (r *Retriever) acquire() *snapshot {
	for {
		s := r.snap.Load()
		s.refs.Add(1)
		if r.snap.Load() == s {
			return s
		}
		s.release()
	}
}

// Close retires the current snapshot. Queries already running finish against it.
func (r *Retriever) Close() error {
	r.snap.Swap(&snapshot{}).retire()
	return nil
}

// Info describes the snapshot currently serving queries.
func (r *Retriever) Info() models.SearchInfo {
	s := r.snap.Load()
	mode := ModeSemantic
	if s.lexical != nil {
		mode = ModeHybrid
	}
	return models.SearchInfo{
		SearchMode:       mode,
		DocumentCount:    s.docCount,
		Weights:          models.Weights{Semantic: r.cfg.SemanticWeight, Lexical: r.cfg.LexicalWeight},
		LexicalAvailable: s.lexical != nil,
		HybridAvailable:  s.lexical != nil,
	}
}

// Config returns the retrieval configuration.
func (r *Retriever) Config() config.RetrievalConfig { return r.cfg }

// Search returns up to k documents for query, k clamped to the configured range. With a lexical
// retriever available both legs run concurrently and are fused; if either leg fails the search
// falls back to semantic-only.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]*Hit, error) {
	k = r.cfg.ClampK(k)
	s := r.acquire()
	defer s.release()
	if s.lexical == nil {
		return r.SemanticSearch(ctx, query, k)
	}

	start := time.Now()
	var semantic, lexical []*models.ScoredDocument
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := r.store.SimilaritySearchWithScore(gctx, query, k)
		if err != nil {
			return fmt.Errorf("semantic search: %w", err)
		}
		semantic = res
		return nil
	})
	g.Go(func() error {
		res, err := s.lexical.Search(gctx, query, k)
		if err != nil {
			return fmt.Errorf("lexical search: %w", err)
		}
		lexical = res
		return nil
	})
	err := g.Wait()
	r.observer.ObserveRetrieval(ModeHybrid, time.Since(start), err)
	if err != nil {
		r.logger.Warn("hybrid search failed, falling back to semantic", zap.String("query", query), zap.Error(err))
		return r.SemanticSearch(ctx, query, k)
	}

	hits := Fuse(semantic, lexical, r.cfg.SemanticWeight, r.cfg.LexicalWeight)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// SemanticSearch returns the k nearest documents by embedding similarity.
func (r *Retriever) SemanticSearch(ctx context.Context, query string, k int) ([]*Hit, error) {
	k = r.cfg.ClampK(k)
	start := time.Now()
	res, err := r.store.SimilaritySearchWithScore(ctx, query, k)
	r.observer.ObserveRetrieval(ModeSemantic, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return semanticHits(res), nil
}

// MMRSearch returns k diverse documents by max-marginal-relevance over the nearest MMRFetchK.
func (r *Retriever) MMRSearch(ctx context.Context, query string, k int) ([]*Hit, error) {
	k = r.cfg.ClampK(k)
	start := time.Now()
	res, err := r.store.MaxMarginalRelevanceSearchWithScore(ctx, query, k, r.cfg.MMRFetchK, r.cfg.MMRLambda)
	r.observer.ObserveRetrieval("mmr", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("mmr search: %w", err)
	}
	return semanticHits(res), nil
}
