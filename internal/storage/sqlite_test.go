package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/bunbetsu/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func doc(id, source, item string) *models.Document {
	return &models.Document{
		ID:      id,
		Content: "品目: " + item,
		Metadata: map[string]string{
			models.MetaSource: source,
			models.MetaItem:   item,
		},
	}
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := doc("d1", "gomi.csv", "アルミ缶")
	if err := store.UpsertDocuments(ctx, []*models.Document{d}); err != nil {
		t.Fatal(err)
	}
	if d.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	got, err := store.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Item() != "アルミ缶" || got.Source() != "gomi.csv" {
		t.Errorf("got %+v", got)
	}

	d.Content = "品目: アルミ缶\n出し方: 資源ごみ"
	if err := store.UpsertDocuments(ctx, []*models.Document{d}); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountDocuments(ctx); n != 1 {
		t.Errorf("count after upsert = %d, want 1", n)
	}

	if _, err := store.GetDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_ListAndDeleteBySource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	docs := []*models.Document{
		doc("a1", "a.csv", "びん"),
		doc("a2", "a.csv", "缶"),
		doc("b1", "b.csv", "電池"),
	}
	if err := store.UpsertDocuments(ctx, docs); err != nil {
		t.Fatal(err)
	}

	all, err := store.ListDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "a1" || all[2].ID != "b1" {
		t.Fatalf("ListDocuments order wrong: %d docs", len(all))
	}

	sources, _ := store.ListSources(ctx)
	if sources["a.csv"] != 2 || sources["b.csv"] != 1 {
		t.Errorf("sources = %v", sources)
	}

	byID, _ := store.GetDocuments(ctx, []string{"a2", "b1", "zz"})
	if len(byID) != 2 || byID["b1"].Item() != "電池" {
		t.Errorf("GetDocuments = %v", byID)
	}

	ids, err := store.DeleteBySource(ctx, "a.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Errorf("deleted ids = %v", ids)
	}
	if n, _ := store.CountDocuments(ctx); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountDocuments(ctx); n != 0 {
		t.Errorf("count after reset = %d", n)
	}
}

func TestSQLiteStore_ChatLog(t *testing.T) {
	store, err := NewSQLiteStore(MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	for _, prompt := range []string{"一つ目", "二つ目"} {
		entry := &models.ChatLogEntry{Mode: "blocking", Prompt: prompt, Response: "ok", Latency: 0.5}
		if err := store.AppendChatLog(ctx, entry); err != nil {
			t.Fatal(err)
		}
		if entry.ID == "" {
			t.Error("ID should be assigned")
		}
	}
	entries, err := store.RecentChatLog(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Prompt != "二つ目" {
		t.Errorf("entries = %+v", entries)
	}
}
