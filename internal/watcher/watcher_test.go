package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/bunbetsu/internal/models"
)

type fakeTarget struct {
	mu        sync.Mutex
	ingested  []string
	forgotten []string
}

func (f *fakeTarget) IngestFile(ctx context.Context, path string) (models.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, filepath.Base(path))
	return models.IngestResult{Source: filepath.Base(path), Documents: 1}, nil
}

func (f *fakeTarget) ForgetSource(ctx context.Context, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, source)
	return 1, nil
}

func (f *fakeTarget) snapshot() (ingested, forgotten []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ingested...), append([]string(nil), f.forgotten...)
}

func startWatcher(t *testing.T, dir string, target Target) *Watcher {
	t.Helper()
	w := New(dir, []string{".csv", ".txt"}, target, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	target := &fakeTarget{}
	startWatcher(t, dir, target)

	path := filepath.Join(dir, "gomi.csv")
	for i := 0; i < 3; i++ {
		if err := writeFile(path, "品名,出し方\nアルミ缶,資源化物\n"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	ingested, _ := target.snapshot()
	if len(ingested) != 1 || ingested[0] != "gomi.csv" {
		t.Errorf("expected one debounced ingestion, got %v", ingested)
	}
}

func TestWatcher_FiltersFiles(t *testing.T) {
	dir := t.TempDir()
	target := &fakeTarget{}
	startWatcher(t, dir, target)

	for _, name := range []string{"ignore.xyz", ".staged.upload", "notes.txt"} {
		if err := writeFile(filepath.Join(dir, name), "x"); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "sub", "nested.csv"), "x"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	ingested, _ := target.snapshot()
	if len(ingested) != 1 || ingested[0] != "notes.txt" {
		t.Errorf("ingested = %v", ingested)
	}
}

func TestWatcher_RemoveForgetsSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gomi.csv")
	if err := writeFile(path, "x"); err != nil {
		t.Fatal(err)
	}
	target := &fakeTarget{}
	startWatcher(t, dir, target)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	_, forgotten := target.snapshot()
	if len(forgotten) != 1 || forgotten[0] != "gomi.csv" {
		t.Errorf("forgotten = %v", forgotten)
	}
}

func TestWatcher_StartCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "rules")
	w := New(dir, nil, &fakeTarget{})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory should exist after Start: %v", err)
	}
	if w.Dir() != dir {
		t.Errorf("Dir() = %q", w.Dir())
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.csv", []string{".csv"}, true},
		{"/a/b.XLSX", []string{"xlsx"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
