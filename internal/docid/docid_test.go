package docid

import (
	"strings"
	"testing"
)

func TestRow(t *testing.T) {
	if Row("gomi.csv", 1) != Row("gomi.csv", 1) {
		t.Error("same source and row should give the same ID")
	}
	seen := map[string]bool{}
	for _, id := range []string{Row("gomi.csv", 1), Row("gomi.csv", 2), Row("gomi2.csv", 1), File("gomi.csv")} {
		if seen[id] {
			t.Errorf("duplicate ID %q", id)
		}
		seen[id] = true
	}
	// "a.csv" row 12 must not collide with "a.csv1" row 2.
	if Row("a.csv", 12) == Row("a.csv1", 2) {
		t.Error("source/row boundary is ambiguous")
	}
}

func TestFile(t *testing.T) {
	id := File("guide.md")
	if !strings.HasPrefix(id, filePrefix) || len(id) != len(filePrefix)+64 {
		t.Errorf("unexpected ID %q", id)
	}
}
