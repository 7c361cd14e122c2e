// Package docstore adapts the document table, the vector index and the embedder into the
// vector-store contract the retriever consumes.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/embedding"
	"github.com/hyperjump/bunbetsu/internal/keyword"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/storage"
	"github.com/hyperjump/bunbetsu/internal/vector"
)

// ErrEmptyQuery is returned by the search methods for a blank query.
var ErrEmptyQuery = errors.New("empty query")

// Store is the document store: rows in SQLite, vectors in a persisted in-memory index.
type Store struct {
	docs      storage.DocumentStore
	vectors   vector.VectorIndex
	embedder  embedding.Embedder
	indexPath string
	batchSize int
	logger    *zap.Logger
	mu        sync.Mutex // serializes mutations
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithBatchSize sets how many documents are embedded per request. Default 64.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New returns a store persisting vectors under indexDir.
func New(docs storage.DocumentStore, vectors vector.VectorIndex, embedder embedding.Embedder, indexDir string, opts ...Option) *Store {
	s := &Store{
		docs:      docs,
		vectors:   vectors,
		embedder:  embedder,
		indexPath: filepath.Join(indexDir, vector.FileName),
		batchSize: 64,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the persisted vectors. When the vector file and the document table disagree on
// size (a crash between the two writes) both are cleared so the next ingestion starts clean.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.vectors.Load(s.indexPath); err != nil {
		s.logger.Warn("vector index unreadable, resetting", zap.String("path", s.indexPath), zap.Error(err))
		return s.resetLocked(ctx)
	}
	n, err := s.docs.CountDocuments(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	if n != s.vectors.Size() {
		s.logger.Warn("document table and vector index out of sync, resetting",
			zap.Int("documents", n),
			zap.Int("vectors", s.vectors.Size()),
		)
		return s.resetLocked(ctx)
	}
	s.logger.Info("document store opened", zap.Int("documents", n))
	return nil
}

// EmbeddingModel names the model used for document and query vectors.
func (s *Store) EmbeddingModel() string { return s.embedder.Model() }

func (s *Store) embed(ctx context.Context, docs []*models.Document) ([]string, [][]float32, error) {
	ids := make([]string, 0, len(docs))
	vectors := make([][]float32, 0, len(docs))
	for start := 0; start < len(docs); start += s.batchSize {
		end := min(start+s.batchSize, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Content)
			ids = append(ids, d.ID)
		}
		batch, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, nil, fmt.Errorf("embed documents: %w", err)
		}
		if len(batch) != end-start {
			return nil, nil, fmt.Errorf("embed documents: got %d vectors for %d texts", len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}
	return ids, vectors, nil
}

func (s *Store) writeLocked(ctx context.Context, docs []*models.Document, ids []string, vectors [][]float32) error {
	if err := s.docs.UpsertDocuments(ctx, docs); err != nil {
		return fmt.Errorf("store documents: %w", err)
	}
	if err := s.vectors.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	return nil
}

// AddDocuments embeds and persists docs, then saves the vector index.
func (s *Store) AddDocuments(ctx context.Context, docs []*models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	ids, vectors, err := s.embed(ctx, docs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(ctx, docs, ids, vectors); err != nil {
		return err
	}
	if err := s.vectors.Save(s.indexPath); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	s.logger.Debug("documents added", zap.Int("count", len(docs)))
	return nil
}

// ReplaceSource swaps every document of source for docs. Embedding happens before anything is
// removed, so a failing embedder leaves the previous version of the source in place.
func (s *Store) ReplaceSource(ctx context.Context, source string, docs []*models.Document) (removed int, err error) {
	ids, vectors, err := s.embed(ctx, docs)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, err := s.docs.DeleteBySource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	if len(old) > 0 {
		if err := s.vectors.Remove(ctx, old); err != nil {
			return 0, fmt.Errorf("remove vectors: %w", err)
		}
	}
	if len(docs) > 0 {
		if err := s.writeLocked(ctx, docs, ids, vectors); err != nil {
			return 0, err
		}
	}
	if err := s.vectors.Save(s.indexPath); err != nil {
		return 0, fmt.Errorf("save vectors: %w", err)
	}
	s.logger.Debug("source replaced",
		zap.String("source", source),
		zap.Int("removed", len(old)),
		zap.Int("added", len(docs)),
	)
	return len(old), nil
}

// GetAll returns every stored document in insertion order.
func (s *Store) GetAll(ctx context.Context) ([]*models.Document, error) {
	return s.docs.ListDocuments(ctx)
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.docs.CountDocuments(ctx)
}

// Sources returns the document count per source.
func (s *Store) Sources(ctx context.Context) (map[string]int, error) {
	return s.docs.ListSources(ctx)
}

func (s *Store) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	v, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return v, nil
}

// resolve maps vector hits to documents, keeping hit order and dropping IDs no longer stored.
func (s *Store) resolve(ctx context.Context, hits []*vector.VectorResult) ([]*models.ScoredDocument, error) {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	byID, err := s.docs.GetDocuments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	out := make([]*models.ScoredDocument, 0, len(hits))
	for _, h := range hits {
		if d, ok := byID[h.ID]; ok {
			out = append(out, &models.ScoredDocument{Document: d, Score: h.Score})
		}
	}
	return out, nil
}

// SimilaritySearchWithScore returns the k nearest documents with their cosine similarity in [0, 1].
func (s *Store) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]*models.ScoredDocument, error) {
	q, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.vectors.Search(ctx, q, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return s.resolve(ctx, hits)
}

// SimilaritySearch returns the k nearest documents.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) ([]*models.Document, error) {
	scored, err := s.SimilaritySearchWithScore(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return documents(scored), nil
}

// MaxMarginalRelevanceSearchWithScore returns k diverse documents chosen from the fetchK nearest,
// each with its similarity to the query.
func (s *Store) MaxMarginalRelevanceSearchWithScore(ctx context.Context, query string, k, fetchK int, lambda float64) ([]*models.ScoredDocument, error) {
	q, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.vectors.MaxMarginalRelevance(ctx, q, k, fetchK, lambda)
	if err != nil {
		return nil, fmt.Errorf("mmr search: %w", err)
	}
	return s.resolve(ctx, hits)
}

// MaxMarginalRelevanceSearch returns k diverse documents chosen from the fetchK nearest.
func (s *Store) MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int, lambda float64) ([]*models.Document, error) {
	scored, err := s.MaxMarginalRelevanceSearchWithScore(ctx, query, k, fetchK, lambda)
	if err != nil {
		return nil, err
	}
	return documents(scored), nil
}

// DeleteBySource removes every document of source and returns how many were removed.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.docs.DeleteBySource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.vectors.Remove(ctx, ids); err != nil {
		return 0, fmt.Errorf("remove vectors: %w", err)
	}
	if err := s.vectors.Save(s.indexPath); err != nil {
		return 0, fmt.Errorf("save vectors: %w", err)
	}
	return len(ids), nil
}

// Reset drops every document and vector and removes the vector file.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked(ctx)
}

func (s *Store) resetLocked(ctx context.Context) error {
	if err := s.docs.Reset(ctx); err != nil {
		return fmt.Errorf("reset documents: %w", err)
	}
	if err := s.vectors.Reset(); err != nil {
		return fmt.Errorf("reset vectors: %w", err)
	}
	if err := os.Remove(s.indexPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove vector file: %w", err)
	}
	return nil
}

// LexicalSource builds a lexical retriever over the current corpus.
func (s *Store) LexicalSource(ctx context.Context, opts keyword.Options) (*keyword.Retriever, error) {
	docs, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return keyword.Build(ctx, docs, opts)
}

func documents(scored []*models.ScoredDocument) []*models.Document {
	out := make([]*models.Document, len(scored))
	for i, sd := range scored {
		out[i] = sd.Document
	}
	return out
}
