package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	ids := []string{"a", "b", "c"}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("order = %s,%s", results[0].ID, results[1].ID)
	}
	if results[0].Score < 0.999 || results[0].Score > 1 {
		t.Errorf("score out of range: %f", results[0].Score)
	}
}

func TestMemoryIndex_InfersDimensions(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 2, 3, 4}}); err != nil {
		t.Fatal(err)
	}
	if idx.Dimensions() != 4 {
		t.Errorf("Dimensions = %d", idx.Dimensions())
	}
	if err := idx.Add(ctx, []string{"b"}, [][]float32{{1}}); err == nil {
		t.Error("expected dimension mismatch")
	}
}

func TestMemoryIndex_AddOverwrites(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x"}, [][]float32{{1, 0}})
	_ = idx.Add(ctx, []string{"x"}, [][]float32{{0, 1}})
	if idx.Size() != 1 {
		t.Fatalf("Size = %d, want 1", idx.Size())
	}
	res, _ := idx.Search(ctx, []float32{0, 1}, 1)
	if res[0].Score < 0.999 {
		t.Errorf("vector not overwritten, score %f", res[0].Score)
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Remove(ctx, []string{"x"}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
	_ = idx.Add(ctx, []string{"y"}, [][]float32{{1, 0}})
	if idx.Size() != 1 {
		t.Errorf("re-adding y should overwrite, size %d", idx.Size())
	}
}

func TestMemoryIndex_MMRPrefersDiversity(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx,
		[]string{"a", "a2", "b"},
		[][]float32{{1, 0}, {0.99, 0.01}, {0.6, 0.8}},
	)
	plain, _ := idx.Search(ctx, []float32{1, 0}, 2)
	if plain[1].ID != "a2" {
		t.Fatalf("plain search second = %s", plain[1].ID)
	}
	mmr, err := idx.MaxMarginalRelevance(ctx, []float32{1, 0}, 2, 20, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if len(mmr) != 2 || mmr[0].ID != "a" || mmr[1].ID != "b" {
		t.Errorf("mmr = %v, %v", mmr[0].ID, mmr[1].ID)
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", FileName)
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"p", "q"}, [][]float32{{1, 0, 0}, {0, 0, 1}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(0)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 || loaded.Dimensions() != 3 {
		t.Fatalf("loaded size=%d dims=%d", loaded.Size(), loaded.Dimensions())
	}
	res, _ := loaded.Search(ctx, []float32{0, 0, 1}, 1)
	if res[0].ID != "q" {
		t.Errorf("top = %s", res[0].ID)
	}

	fixed, _ := NewMemoryIndex(5)
	if err := fixed.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
	missing, _ := NewMemoryIndex(0)
	if err := missing.Load(filepath.Join(t.TempDir(), "none.bin")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{2, 0}, []float32{5, 0}); got < 0.999 {
		t.Errorf("parallel = %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Errorf("opposite should clamp to 0, got %f", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector = %f", got)
	}
}
