// Package extract reads text-like files (.txt, .md, .pdf, .docx) into plain text. Each such file
// becomes a single document at ingestion.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for extensions without an extractor.
var ErrUnsupported = errors.New("unsupported file type")

var extractors = map[string]func([]byte) (string, error){
	".txt":  extractPlain,
	".md":   extractPlain,
	".pdf":  extractPDF,
	".docx": extractDOCX,
}

// Supported reports whether ext (with leading dot, any case) has an extractor.
func Supported(ext string) bool {
	_, ok := extractors[strings.ToLower(ext)]
	return ok
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its trimmed text.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content according to ext.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := extractors[strings.ToLower(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	text, err := fn(content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
