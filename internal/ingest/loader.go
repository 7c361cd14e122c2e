// Package ingest turns source files into rule documents: every row of a CSV or XLSX sheet
// becomes one document, every text-like file becomes exactly one.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/docid"
	"github.com/hyperjump/bunbetsu/internal/extract"
	"github.com/hyperjump/bunbetsu/internal/models"
)

// ErrUnsupported is returned for files that are neither rule sheets nor text-like.
var ErrUnsupported = errors.New("unsupported file type")

// Supported reports whether files with extension ext can be ingested.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".csv", ".xlsx":
		return true
	}
	return extract.Supported(ext)
}

// Batch is the result of loading one source file.
type Batch struct {
	Source    string
	Documents []*models.Document
	// Skipped counts blank rows.
	Skipped  int
	Encoding string
}

// Result summarizes the batch.
func (b *Batch) Result() models.IngestResult {
	return models.IngestResult{Source: b.Source, Documents: len(b.Documents), Skipped: b.Skipped}
}

// Loader reads source files into documents.
type Loader struct {
	extractor *extract.Extractor
	logger    *zap.Logger
	now       func() time.Time
}

// NewLoader returns a loader. A nil logger disables logging.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{extractor: extract.NewExtractor(), logger: logger, now: time.Now}
}

// LoadFile reads path and loads it under its basename.
func (l *Loader) LoadFile(path string) (*Batch, error) {
	if !Supported(filepath.Ext(path)) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l.Load(filepath.Base(path), content)
}

// Load parses content as the file named source.
func (l *Loader) Load(source string, content []byte) (*Batch, error) {
	ext := strings.ToLower(filepath.Ext(source))
	switch ext {
	case ".csv":
		records, enc, err := readCSV(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		b := l.rows(source, records)
		b.Encoding = enc
		return b, nil
	case ".xlsx":
		records, err := readXLSX(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		return l.rows(source, records), nil
	}
	if !extract.Supported(ext) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, source)
	}
	text, err := l.extractor.ExtractBytes(content, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	b := &Batch{Source: source}
	if text == "" {
		b.Skipped = 1
		return b, nil
	}
	id := docid.File(source)
	b.Documents = []*models.Document{{
		ID:        id,
		Content:   text,
		Metadata:  map[string]string{models.MetaSource: source, models.MetaID: id},
		CreatedAt: l.now().UTC(),
	}}
	return b, nil
}

// rows converts a header plus data records into documents.
func (l *Loader) rows(source string, records [][]string) *Batch {
	b := &Batch{Source: source}
	if len(records) == 0 {
		return b
	}
	schema := ResolveSchema(records[0])
	if missing := schema.Missing(); len(missing) > 0 {
		l.logger.Debug("columns not found", zap.String("source", source), zap.Strings("fields", missing))
	}
	now := l.now().UTC()
	for i, rec := range records[1:] {
		row := schema.Row(rec)
		if row.Empty() {
			b.Skipped++
			continue
		}
		n := i + 1
		id := docid.Row(source, n)
		meta := map[string]string{
			models.MetaSource: source,
			models.MetaID:     id,
			models.MetaRow:    strconv.Itoa(n),
		}
		for f, v := range row {
			meta[Field(f).String()] = v
		}
		b.Documents = append(b.Documents, &models.Document{
			ID:        id,
			Content:   row.Text(),
			Metadata:  meta,
			CreatedAt: now,
		})
	}
	return b
}
