package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type countingResetter struct{ calls int }

func (c *countingResetter) Reset(ctx context.Context) error {
	c.calls++
	return nil
}

func writeIndexFile(t *testing.T, dir string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "vectors.bin")
	if err := os.WriteFile(p, []byte("vectors"), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGuard_NoIndexNoRebuild(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	g := NewGuard(dir, "X", "tag")
	d, err := g.Check()
	if err != nil {
		t.Fatal(err)
	}
	if d.Rebuild {
		t.Errorf("fresh directory should not need a rebuild: %+v", d)
	}
}

func TestGuard_IndexWithoutManifestRebuilds(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	vec := writeIndexFile(t, dir)
	store := &countingResetter{}

	d, err := NewGuard(dir, "X", "tag").Enforce(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Rebuild {
		t.Fatal("expected rebuild when index exists without manifest")
	}
	if _, err := os.Stat(vec); !os.IsNotExist(err) {
		t.Errorf("vector file should be deleted, stat err = %v", err)
	}
	if store.calls != 1 {
		t.Errorf("dependent store reset %d times, want 1", store.calls)
	}
}

func TestGuard_ModelMismatchDeletesIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	vec := writeIndexFile(t, dir)
	if _, err := NewGuard(dir, "X", "tag").Commit(); err != nil {
		t.Fatal(err)
	}

	store := &countingResetter{}
	d, err := NewGuard(dir, "Y", "tag").Enforce(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Rebuild {
		t.Fatal("manifest for X must not serve model Y")
	}
	if _, err := os.Stat(vec); !os.IsNotExist(err) {
		t.Error("persisted index should be gone before the first query")
	}
	if store.calls != 1 {
		t.Errorf("store resets = %d", store.calls)
	}
}

func TestGuard_MatchKeepsIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	vec := writeIndexFile(t, dir)
	g := NewGuard(dir, "X", "tag")
	if _, err := g.Commit(); err != nil {
		t.Fatal(err)
	}
	store := &countingResetter{}
	d, err := g.Enforce(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	if d.Rebuild {
		t.Errorf("matching manifest should keep the index: %s", d.Reason)
	}
	if _, err := os.Stat(vec); err != nil {
		t.Errorf("vector file should survive: %v", err)
	}
	if store.calls != 0 {
		t.Error("store must not be reset")
	}
}

func TestGuard_StrategyMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	writeIndexFile(t, dir)
	if _, err := NewGuard(dir, "X", "plain").Commit(); err != nil {
		t.Fatal(err)
	}
	d, err := NewGuard(dir, "X", "prefixed").Check()
	if err != nil {
		t.Fatal(err)
	}
	if !d.Rebuild {
		t.Error("strategy change should force a rebuild")
	}
}

func TestGuard_CorruptManifestRebuilds(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	writeIndexFile(t, dir)
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	d, err := NewGuard(dir, "X", "tag").Check()
	if err != nil {
		t.Fatal(err)
	}
	if !d.Rebuild {
		t.Error("unreadable manifest should force a rebuild")
	}
}

func TestGuard_CommitAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	fixed := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	g := NewGuard(dir, "bge-m3", "rowdoc-v1", WithClock(func() time.Time { return fixed }))

	if _, err := g.Load(); !errors.Is(err, ErrNoManifest) {
		t.Fatalf("Load before commit: err = %v", err)
	}
	if _, err := g.Commit(); err != nil {
		t.Fatal(err)
	}
	m, err := g.Load()
	if err != nil {
		t.Fatal(err)
	}
	if m.EmbeddingModel != "bge-m3" || m.StrategyTag != "rowdoc-v1" || !m.CreatedAt.Equal(fixed) {
		t.Errorf("unexpected manifest %+v", m)
	}
	if exists, _ := g.IndexExists(); exists {
		t.Error("a manifest alone is not an index")
	}
	if err := g.Remove(); err != nil {
		t.Fatal(err)
	}
	if err := g.Remove(); err != nil {
		t.Errorf("second remove should be a no-op: %v", err)
	}
}
