package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.json")
	index := filepath.Join(dir, "index")
	if err := os.WriteFile(manifest, []byte("{...}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(index, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(index, "vectors.bin"), []byte("ab"), 0644)
	_ = os.WriteFile(filepath.Join(index, "nested", "x"), []byte("c"), 0644)

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{manifest}, 5},
		{"directory", []string{index}, 3},
		{"file and directory", []string{manifest, index}, 8},
		{"missing path skipped", []string{manifest, filepath.Join(dir, "none"), index}, 8},
		{"empty path skipped", []string{"", manifest}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d bytes, want %d", got, tt.want)
			}
		})
	}
}
