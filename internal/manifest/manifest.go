// Package manifest guards the persisted index against being served with a different embedding
// configuration than the one that produced it.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/models"
)

// FileName is the manifest file inside the index directory.
const FileName = "manifest.json"

// ErrNoManifest is returned by Load when no manifest has been written yet.
var ErrNoManifest = errors.New("manifest not found")

// Resetter is persisted state that must be discarded together with the vector index.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Decision is the outcome of comparing the persisted manifest with the active configuration.
type Decision struct {
	Rebuild bool
	Reason  string
}

// Guard compares the persisted manifest with the active embedding configuration.
type Guard struct {
	dir            string
	embeddingModel string
	strategyTag    string
	logger         *zap.Logger
	now            func() time.Time
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithLogger sets the logger used for rebuild warnings.
func WithLogger(l *zap.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// NewGuard returns a guard for the index stored in dir.
func NewGuard(dir, embeddingModel, strategyTag string, opts ...GuardOption) *Guard {
	g := &Guard{
		dir:            dir,
		embeddingModel: embeddingModel,
		strategyTag:    strategyTag,
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Path returns the manifest file path.
func (g *Guard) Path() string {
	return filepath.Join(g.dir, FileName)
}

// Load reads the persisted manifest.
func (g *Guard) Load() (*models.Manifest, error) {
	data, err := os.ReadFile(g.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoManifest
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// IndexExists reports whether anything besides the manifest is persisted in the index directory.
func (g *Guard) IndexExists() (bool, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read index dir: %w", err)
	}
	for _, e := range entries {
		if e.Name() != FileName {
			return true, nil
		}
	}
	return false, nil
}

// Check decides whether the persisted index must be discarded. A missing index never needs a
// rebuild; an existing one does when the manifest is absent, unreadable or mismatched.
func (g *Guard) Check() (Decision, error) {
	exists, err := g.IndexExists()
	if err != nil {
		return Decision{}, err
	}
	if !exists {
		return Decision{}, nil
	}
	m, err := g.Load()
	switch {
	case errors.Is(err, ErrNoManifest):
		return Decision{Rebuild: true, Reason: "index exists without manifest"}, nil
	case err != nil:
		return Decision{Rebuild: true, Reason: err.Error()}, nil
	case !m.Matches(g.embeddingModel, g.strategyTag):
		return Decision{Rebuild: true, Reason: fmt.Sprintf("manifest %s/%s does not match %s/%s",
			m.EmbeddingModel, m.StrategyTag, g.embeddingModel, g.strategyTag)}, nil
	}
	return Decision{}, nil
}

// Enforce runs Check and, when a rebuild is required, deletes the index directory and resets
// every dependent store. It must run before the first query is served.
func (g *Guard) Enforce(ctx context.Context, dependents ...Resetter) (Decision, error) {
	d, err := g.Check()
	if err != nil {
		return d, err
	}
	if !d.Rebuild {
		return d, nil
	}
	g.logger.Warn("embedding configuration changed, discarding persisted index",
		zap.String("reason", d.Reason),
		zap.String("index_dir", g.dir),
		zap.String("embedding_model", g.embeddingModel),
	)
	if err := os.RemoveAll(g.dir); err != nil {
		return d, fmt.Errorf("remove index dir: %w", err)
	}
	for _, r := range dependents {
		if err := r.Reset(ctx); err != nil {
			return d, fmt.Errorf("reset dependent store: %w", err)
		}
	}
	return d, nil
}

// Commit writes a fresh manifest for the active configuration. Call it once ingestion completes.
func (g *Guard) Commit() (*models.Manifest, error) {
	m := &models.Manifest{
		EmbeddingModel: g.embeddingModel,
		StrategyTag:    g.strategyTag,
		CreatedAt:      g.now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	tmp := g.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, g.Path()); err != nil {
		return nil, fmt.Errorf("replace manifest: %w", err)
	}
	return m, nil
}

// Remove deletes the manifest, used by a full reset.
func (g *Guard) Remove() error {
	if err := os.Remove(g.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove manifest: %w", err)
	}
	return nil
}
