// Package docid derives deterministic document IDs so re-ingesting a file reproduces the same IDs.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

const (
	rowPrefix  = "row:"
	filePrefix = "file:"
)

func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Row returns the ID of the row-th data row (1-based, header excluded) of a tabular source.
func Row(source string, row int) string {
	return rowPrefix + digest(source, strconv.Itoa(row))
}

// File returns the ID of a text-like source ingested as one document.
func File(source string) string {
	return filePrefix + digest(source)
}
