package ingest

import (
	"strings"

	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/textnorm"
)

// Field is a logical column of a rule sheet.
type Field int

const (
	FieldItem Field = iota
	FieldHow
	FieldNote
	FieldArea
	numFields
)

// String returns the metadata key of f.
func (f Field) String() string {
	switch f {
	case FieldItem:
		return models.MetaItem
	case FieldHow:
		return models.MetaHow
	case FieldNote:
		return models.MetaNote
	case FieldArea:
		return models.MetaArea
	}
	return "unknown"
}

// ColumnSynonyms lists the accepted header spellings per field, in priority order.
var ColumnSynonyms = [numFields][]string{
	FieldItem: {"品名", "品目", "item"},
	FieldHow:  {"出し方", "処理方法", "how"},
	FieldNote: {"備考", "注意", "note"},
	FieldArea: {"エリア", "地区", "area"},
}

// Schema maps each field to a column index, -1 when the sheet has no such column.
type Schema [numFields]int

func headerKey(s string) string {
	return strings.ToLower(textnorm.Normalize(s))
}

// ResolveSchema picks, for each field, the column whose header matches the earliest synonym.
func ResolveSchema(header []string) Schema {
	index := make(map[string]int, len(header))
	for i, h := range header {
		k := headerKey(h)
		if _, seen := index[k]; !seen && k != "" {
			index[k] = i
		}
	}
	var s Schema
	for f := range s {
		s[f] = -1
		for _, name := range ColumnSynonyms[f] {
			if i, ok := index[headerKey(name)]; ok {
				s[f] = i
				break
			}
		}
	}
	return s
}

// Missing returns the fields without a column.
func (s Schema) Missing() []string {
	var out []string
	for f, i := range s {
		if i < 0 {
			out = append(out, Field(f).String())
		}
	}
	return out
}

// Row is one rule resolved against a schema.
type Row [numFields]string

// Row extracts the fields of record. Short records yield empty fields.
func (s Schema) Row(record []string) Row {
	var r Row
	for f, i := range s {
		if i >= 0 && i < len(record) {
			r[f] = strings.TrimSpace(record[i])
		}
	}
	return r
}

// Empty reports whether every field is blank.
func (r Row) Empty() bool {
	for _, v := range r {
		if v != "" {
			return false
		}
	}
	return true
}

// Text renders the row as the indexed document body.
func (r Row) Text() string {
	return strings.Join([]string{
		"品目: " + r[FieldItem],
		"出し方: " + r[FieldHow],
		"備考: " + r[FieldNote],
		"エリア: " + r[FieldArea],
	}, "\n")
}
