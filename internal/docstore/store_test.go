package docstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/bunbetsu/internal/embedding"
	"github.com/hyperjump/bunbetsu/internal/keyword"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/storage"
	"github.com/hyperjump/bunbetsu/internal/vector"
)

func newStore(t *testing.T, indexDir string) *Store {
	t.Helper()
	db, err := storage.NewSQLiteStore(filepath.Join(indexDir, "..", "docs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	idx, _ := vector.NewMemoryIndex(0)
	return New(db, idx, embedding.NewMockEmbedder(128), indexDir)
}

func rule(id, source, item, how string) *models.Document {
	return &models.Document{
		ID:      id,
		Content: "品目: " + item + "\n出し方: " + how,
		Metadata: map[string]string{
			models.MetaSource: source,
			models.MetaItem:   item,
			models.MetaHow:    how,
		},
	}
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	err := s.AddDocuments(context.Background(), []*models.Document{
		rule("a", "gomi.csv", "スプレー缶", "穴を開けずに出す"),
		rule("b", "gomi.csv", "冷蔵庫", "家電リサイクル"),
		rule("c", "extra.csv", "乾電池", "拠点回収"),
	})
	if err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
}

func TestStore_AddAndSearch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	s := newStore(t, dir)
	seed(t, s)
	ctx := context.Background()

	if n, _ := s.Count(ctx); n != 3 {
		t.Errorf("Count = %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, vector.FileName)); err != nil {
		t.Errorf("vector file not saved: %v", err)
	}

	scored, err := s.SimilaritySearchWithScore(ctx, "品目: 冷蔵庫", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(scored) != 2 || scored[0].Document.ID != "b" {
		t.Fatalf("top = %+v", scored)
	}
	if scored[0].Score < 0 || scored[0].Score > 1 {
		t.Errorf("score out of [0,1]: %f", scored[0].Score)
	}

	mmr, err := s.MaxMarginalRelevanceSearch(ctx, "品目: 冷蔵庫", 2, 20, 0.5)
	if err != nil || len(mmr) != 2 {
		t.Fatalf("mmr = %v, %v", mmr, err)
	}

	if _, err := s.SimilaritySearch(ctx, "  ", 2); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestStore_DeleteBySource(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "index"))
	seed(t, s)
	ctx := context.Background()

	n, err := s.DeleteBySource(ctx, "gomi.csv")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("removed = %d", n)
	}
	all, _ := s.GetAll(ctx)
	if len(all) != 1 || all[0].ID != "c" {
		t.Errorf("remaining = %v", all)
	}
	docs, _ := s.SimilaritySearch(ctx, "冷蔵庫", 5)
	for _, d := range docs {
		if d.Source() == "gomi.csv" {
			t.Errorf("deleted document %s still searchable", d.ID)
		}
	}
}

func TestStore_ReopenAndReset(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "index")
	s := newStore(t, dir)
	seed(t, s)

	reopened := newStore(t, dir)
	ctx := context.Background()
	if err := reopened.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := reopened.SimilaritySearch(ctx, "乾電池", 1); len(got) != 1 || got[0].ID != "c" {
		t.Errorf("reopened search = %v", got)
	}

	if err := reopened.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := reopened.Count(ctx); n != 0 {
		t.Errorf("Count after reset = %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, vector.FileName)); !os.IsNotExist(err) {
		t.Error("vector file should be removed on reset")
	}
}

func TestStore_OpenResetsWhenOutOfSync(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	s := newStore(t, dir)
	seed(t, s)
	if err := os.Remove(filepath.Join(dir, vector.FileName)); err != nil {
		t.Fatal(err)
	}

	reopened := newStore(t, dir)
	ctx := context.Background()
	if err := reopened.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := reopened.Count(ctx); n != 0 {
		t.Errorf("documents should be cleared when vectors are missing, count %d", n)
	}
}

func TestStore_LexicalSource(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "index"))
	ctx := context.Background()
	if _, err := s.LexicalSource(ctx, keyword.Options{}); !errors.Is(err, keyword.ErrCorpusTooSmall) {
		t.Errorf("empty corpus: %v", err)
	}
	seed(t, s)
	r, err := s.LexicalSource(ctx, keyword.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.DocCount() != 3 {
		t.Errorf("DocCount = %d", r.DocCount())
	}
}

type failingEmbedder struct {
	*embedding.MockEmbedder
	fail bool
}

func (f *failingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("embedding runtime down")
	}
	return f.MockEmbedder.EmbedDocuments(ctx, texts)
}

func TestStore_ReplaceSource(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	db, err := storage.NewSQLiteStore(storage.MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	idx, _ := vector.NewMemoryIndex(0)
	emb := &failingEmbedder{MockEmbedder: embedding.NewMockEmbedder(64)}
	s := New(db, idx, emb, dir)
	seed(t, s)
	ctx := context.Background()

	removed, err := s.ReplaceSource(ctx, "gomi.csv", []*models.Document{rule("d", "gomi.csv", "テレビ", "家電リサイクル")})
	if err != nil {
		t.Fatalf("ReplaceSource: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	sources, _ := s.Sources(ctx)
	if sources["gomi.csv"] != 1 || sources["extra.csv"] != 1 || idx.Size() != 2 {
		t.Errorf("sources = %v, vectors = %d", sources, idx.Size())
	}

	emb.fail = true
	if _, err := s.ReplaceSource(ctx, "gomi.csv", []*models.Document{rule("e", "gomi.csv", "ソファ", "粗大ごみ")}); err == nil {
		t.Fatal("expected embedding failure")
	}
	if _, err := db.GetDocument(ctx, "d"); err != nil {
		t.Errorf("previous version of the source should survive a failed replace: %v", err)
	}
}
