package cli

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/bunbetsu/internal/models"
)

// BatchHeader is the header row of a batch answer file.
var BatchHeader = []string{"question", "answer", "latency", "timestamp", "context_found", "source_documents", "mode", "error"}

// ReadQuestions returns the non-blank lines of r, trimmed.
func ReadQuestions(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

// BatchWriter writes one CSV row per answered question.
type BatchWriter struct {
	w    *csv.Writer
	mode string
}

// NewBatchWriter writes the header and returns a writer recording answers under mode.
func NewBatchWriter(w io.Writer, mode string) (*BatchWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(BatchHeader); err != nil {
		return nil, err
	}
	return &BatchWriter{w: cw, mode: mode}, nil
}

// Write records the answer to question.
func (b *BatchWriter) Write(question string, res models.QueryResult) error {
	return b.w.Write([]string{
		question,
		res.Response,
		strconv.FormatFloat(res.Latency, 'f', 3, 64),
		res.Timestamp.Format(time.RFC3339),
		strconv.FormatBool(res.CandidateCount > 0),
		strconv.Itoa(res.CandidateCount),
		b.mode,
		"",
	})
}

// WriteError records a question that could not be answered.
func (b *BatchWriter) WriteError(question string, err error) error {
	return b.w.Write([]string{question, "", "", "", "", "", b.mode, err.Error()})
}

// Flush writes buffered rows and reports any write error.
func (b *BatchWriter) Flush() error {
	b.w.Flush()
	return b.w.Error()
}
