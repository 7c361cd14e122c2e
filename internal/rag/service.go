// Package rag composes the retrieval, reranking and synthesis pipeline into the service the
// transports call. Every dependency is constructed explicitly by New.
package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/answer"
	"github.com/hyperjump/bunbetsu/internal/config"
	"github.com/hyperjump/bunbetsu/internal/docstore"
	"github.com/hyperjump/bunbetsu/internal/embedding"
	"github.com/hyperjump/bunbetsu/internal/ingest"
	"github.com/hyperjump/bunbetsu/internal/llm"
	"github.com/hyperjump/bunbetsu/internal/manifest"
	"github.com/hyperjump/bunbetsu/internal/metrics"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/rerank"
	"github.com/hyperjump/bunbetsu/internal/search"
	"github.com/hyperjump/bunbetsu/internal/storage"
	"github.com/hyperjump/bunbetsu/internal/textnorm"
	"github.com/hyperjump/bunbetsu/internal/vector"
)

// Query modes recorded in the chat log.
const (
	ModeBlocking     = "blocking"
	ModeStreaming    = "streaming"
	ModeBotBlocking  = "bot_blocking"
	ModeBotStreaming = "bot_streaming"
)

// ErrInvalidSource is returned for source names that are not plain file names.
var ErrInvalidSource = errors.New("invalid source name")

// Service answers questions against the indexed rule corpus.
type Service struct {
	cfg       *config.Config
	db        *storage.SQLiteStore
	embedder  embedding.Embedder
	store     *docstore.Store
	guard     *manifest.Guard
	retriever *search.Retriever
	reranker  *rerank.Reranker
	synth     *answer.Synthesizer
	loader    *ingest.Loader
	metrics   *metrics.Metrics
	logger    *zap.Logger

	// mu serializes corpus mutations and the retriever rebuild that follows each one.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	embedder embedding.Embedder
	runtime  llm.Runtime
}

// WithLogger sets the logger passed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records queries, retrieval, model calls and ingestion on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithEmbedder replaces the embedder built from the embedding config.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithRuntime replaces the language-model runtime built from the llm config.
func WithRuntime(rt llm.Runtime) Option {
	return func(o *options) { o.runtime = rt }
}

// New constructs the service from cfg. Call Open before serving queries.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	if o.embedder == nil {
		e, err := embedding.New(cfg.Embedding, logger)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		o.embedder = e
	}
	if o.runtime == nil {
		rt, err := llm.New(cfg.LLM, cfg.Breaker, logger)
		if err != nil {
			return nil, fmt.Errorf("create llm runtime: %w", err)
		}
		o.runtime = rt
	}

	db, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	vectors, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create vector index: %w", err)
	}

	synonyms := textnorm.NewSynonymTable(textnorm.DefaultSynonyms(), cfg.Synonyms)
	store := docstore.New(db, vectors, o.embedder, cfg.Storage.IndexDir, docstore.WithLogger(logger))

	retrieverOpts := []search.Option{search.WithLogger(logger), search.WithSynonyms(synonyms)}
	synthOpts := []answer.Option{answer.WithLogger(logger), answer.WithQueueCapacity(cfg.Stream.QueueCapacity)}
	if o.metrics != nil {
		retrieverOpts = append(retrieverOpts, search.WithObserver(o.metrics))
		synthOpts = append(synthOpts, answer.WithObserver(o.metrics))
	}
	retriever := search.NewRetriever(store, cfg.Retrieval, retrieverOpts...)

	return &Service{
		cfg:       cfg,
		db:        db,
		embedder:  o.embedder,
		store:     store,
		guard:     manifest.NewGuard(cfg.Storage.IndexDir, o.embedder.Model(), cfg.Embedding.StrategyTag, manifest.WithLogger(logger)),
		retriever: retriever,
		reranker:  rerank.New(retriever, synonyms, cfg.Rerank, cfg.Retrieval, rerank.WithLogger(logger)),
		synth:     answer.New(o.runtime, cfg.LLM, synthOpts...),
		loader:    ingest.NewLoader(logger),
		metrics:   o.metrics,
		logger:    logger,
	}, nil
}

// Open enforces the index manifest, loads the persisted index, ingests the data directory and
// builds the retrievers. Queries must not be served before it returns.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	decision, err := s.guard.Enforce(ctx, s.store)
	if err != nil {
		return fmt.Errorf("enforce manifest: %w", err)
	}
	if err := s.store.Open(ctx); err != nil {
		return fmt.Errorf("open document store: %w", err)
	}

	// Files unchanged since the manifest was written are already indexed.
	var since time.Time
	if !decision.Rebuild {
		if m, err := s.guard.Load(); err == nil {
			since = m.CreatedAt
		}
	}
	results, errs := s.loadDirLocked(ctx, since)
	for _, err := range errs {
		s.logger.Warn("initial ingestion failed", zap.Error(err))
	}
	if _, err := s.guard.Commit(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := s.rebuildLocked(ctx); err != nil {
		return err
	}

	total := 0
	for _, r := range results {
		total += r.Documents
	}
	info := s.retriever.Info()
	s.logger.Info("rag service ready",
		zap.String("embedding_model", s.embedder.Model()),
		zap.String("llm_model", s.cfg.LLM.Model),
		zap.String("index_dir", s.cfg.Storage.IndexDir),
		zap.String("data_dir", s.cfg.Storage.DataDir),
		zap.Int("ingested", total),
		zap.Int("documents", info.DocumentCount),
		zap.String("search_mode", info.SearchMode),
	)
	return nil
}

// Close releases the database and the embedder.
func (s *Service) Close() error {
	return errors.Join(s.retriever.Close(), s.db.Close(), s.embedder.Close())
}

// DataDir returns the directory holding source files.
func (s *Service) DataDir() string { return s.cfg.Storage.DataDir }

func (s *Service) rebuildLocked(ctx context.Context) error {
	if err := s.retriever.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild retriever: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SetDocuments(s.retriever.Info().DocumentCount)
	}
	return nil
}

// loadDirLocked ingests every supported file in the data directory modified after since.
func (s *Service) loadDirLocked(ctx context.Context, since time.Time) ([]models.IngestResult, []error) {
	dir := s.cfg.Storage.DataDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, []error{fmt.Errorf("create data dir: %w", err)}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("read data dir: %w", err)}
	}
	var indexed map[string]int
	if !since.IsZero() {
		indexed, _ = s.store.Sources(ctx)
	}

	var (
		results []models.IngestResult
		errs    []error
		present = make(map[string]bool, len(entries))
	)
	for _, e := range entries {
		if e.IsDir() || !ingest.Supported(filepath.Ext(e.Name())) {
			continue
		}
		present[e.Name()] = true
		if indexed[e.Name()] > 0 {
			if info, err := e.Info(); err == nil && info.ModTime().Before(since) {
				continue
			}
		}
		r, err := s.ingestLocked(ctx, filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, r)
	}
	// Sources whose file was deleted while the service was down.
	for src := range indexed {
		if present[src] {
			continue
		}
		if n, err := s.store.DeleteBySource(ctx, src); err != nil {
			errs = append(errs, fmt.Errorf("remove stale source %s: %w", src, err))
		} else {
			s.logger.Info("stale source removed", zap.String("source", src), zap.Int("documents", n))
		}
	}
	return results, errs
}

func fileType(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func (s *Service) ingestLocked(ctx context.Context, path string) (models.IngestResult, error) {
	batch, err := s.loader.LoadFile(path)
	if err == nil {
		_, err = s.store.ReplaceSource(ctx, batch.Source, batch.Documents)
	}
	if s.metrics != nil {
		n := 0
		if batch != nil {
			n = len(batch.Documents)
		}
		s.metrics.ObserveIngest(fileType(path), n, err)
	}
	if err != nil {
		return models.IngestResult{Source: filepath.Base(path)}, fmt.Errorf("ingest %s: %w", filepath.Base(path), err)
	}
	s.logger.Info("file ingested",
		zap.String("source", batch.Source),
		zap.Int("documents", len(batch.Documents)),
		zap.Int("skipped_rows", batch.Skipped),
		zap.String("encoding", batch.Encoding),
	)
	return batch.Result(), nil
}

// IngestFile loads path, replaces any earlier version of the same source and rebuilds the
// retrievers. A failure leaves previously indexed data untouched.
func (s *Service) IngestFile(ctx context.Context, path string) (models.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.ingestLocked(ctx, path)
	if err != nil {
		return r, err
	}
	return r, s.rebuildLocked(ctx)
}

// SaveAndIngest stores content as name in the data directory and ingests it.
func (s *Service) SaveAndIngest(ctx context.Context, name string, content []byte) (models.IngestResult, error) {
	name, err := sourceName(name)
	if err != nil {
		return models.IngestResult{}, err
	}
	if !ingest.Supported(filepath.Ext(name)) {
		return models.IngestResult{Source: name}, fmt.Errorf("%w: %s", ingest.ErrUnsupported, name)
	}
	dir := s.cfg.Storage.DataDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.IngestResult{}, fmt.Errorf("create data dir: %w", err)
	}
	tmp := filepath.Join(dir, "."+uuid.NewString()+".upload")
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return models.IngestResult{}, fmt.Errorf("stage upload: %w", err)
	}
	dest := filepath.Join(dir, name)
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return models.IngestResult{}, fmt.Errorf("store upload: %w", err)
	}
	return s.IngestFile(ctx, dest)
}

// RemoveSource deletes every document of source and its file in the data directory.
func (s *Service) RemoveSource(ctx context.Context, source string) (int, error) {
	source, err := sourceName(source)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.store.DeleteBySource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", source, err)
	}
	if err := os.Remove(filepath.Join(s.cfg.Storage.DataDir, source)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("source file not removed", zap.String("source", source), zap.Error(err))
	}
	s.logger.Info("source removed", zap.String("source", source), zap.Int("documents", n))
	return n, s.rebuildLocked(ctx)
}

// ForgetSource deletes every document of source, leaving files alone. The watcher uses it
// after a file disappeared.
func (s *Service) ForgetSource(ctx context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.store.DeleteBySource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", source, err)
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.rebuildLocked(ctx)
}

func sourceName(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == ".." || strings.HasPrefix(base, ".") || base != strings.TrimSpace(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, name)
	}
	return base, nil
}

// Reset drops every document, vector and the manifest.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	if err := s.guard.Remove(); err != nil {
		return err
	}
	s.logger.Warn("index reset")
	return s.rebuildLocked(ctx)
}

// Reindex discards the index and ingests the whole data directory again.
func (s *Service) Reindex(ctx context.Context) ([]models.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Reset(ctx); err != nil {
		return nil, err
	}
	results, errs := s.loadDirLocked(ctx, time.Time{})
	if _, err := s.guard.Commit(); err != nil {
		errs = append(errs, fmt.Errorf("write manifest: %w", err))
	}
	if err := s.rebuildLocked(ctx); err != nil {
		errs = append(errs, err)
	}
	return results, errors.Join(errs...)
}

// Sources returns the indexed sources with their document counts, sorted by name.
func (s *Service) Sources(ctx context.Context) ([]models.IngestResult, error) {
	counts, err := s.store.Sources(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.IngestResult, 0, len(counts))
	for src, n := range counts {
		out = append(out, models.IngestResult{Source: src, Documents: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

// SearchInfo describes the retriever serving queries.
func (s *Service) SearchInfo(ctx context.Context) models.SearchInfo {
	info := s.retriever.Info()
	info.EmbeddingModel = s.embedder.Model()
	paths := []string{s.cfg.Storage.IndexDir}
	if db := s.cfg.Storage.DatabasePath; db != storage.MemoryPath {
		paths = append(paths, db, db+"-wal")
	}
	if n, err := storage.DiskUsageBytes(paths...); err == nil {
		info.DiskUsageBytes = n
	} else {
		s.logger.Warn("disk usage", zap.Error(err))
	}
	return info
}
