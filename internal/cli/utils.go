// Package cli provides output helpers for the bunbetsu command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes a blocking answer.
func WriteAnswer(w io.Writer, res models.QueryResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintln(w, res.Response)
	fmt.Fprintf(w, "\n(%d candidates, %.2fs)\n", res.CandidateCount, res.Latency)
	return nil
}

type candidatesOutput struct {
	Query      string              `json:"query"`
	Candidates []*models.Candidate `json:"candidates"`
}

// WriteCandidates writes reranked candidates, best first.
func WriteCandidates(w io.Writer, query string, candidates []*models.Candidate, format OutputFormat) error {
	if format == OutputJSON {
		if candidates == nil {
			candidates = []*models.Candidate{}
		}
		return writeJSON(w, candidatesOutput{Query: query, Candidates: candidates})
	}
	fmt.Fprintf(w, "\n%d candidates for %q\n\n", len(candidates), query)
	for i, c := range candidates {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "#%d | Score: %.4f (Lexical: %.4f, Semantic: %.4f)\n",
			i+1, c.CombinedScore, c.LexicalScore, c.SemanticScore)
		fmt.Fprintf(w, "Source: %s  ID: %s\n", c.Document.Source(), c.Document.ID)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(c.Document.Content, 200))
	}
	return nil
}

// WriteSearchInfo writes the retriever status.
func WriteSearchInfo(w io.Writer, info models.SearchInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, info)
	}
	fmt.Fprintf(w, "search_mode:       %s\n", info.SearchMode)
	fmt.Fprintf(w, "document_count:    %d\n", info.DocumentCount)
	fmt.Fprintf(w, "weights:           semantic=%.2f lexical=%.2f\n", info.Weights.Semantic, info.Weights.Lexical)
	fmt.Fprintf(w, "embedding_model:   %s\n", info.EmbeddingModel)
	fmt.Fprintf(w, "lexical_available: %t\n", info.LexicalAvailable)
	return nil
}

// WriteSources writes per-source document counts.
func WriteSources(w io.Writer, sources []models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		if sources == nil {
			sources = []models.IngestResult{}
		}
		return writeJSON(w, sources)
	}
	if len(sources) == 0 {
		fmt.Fprintln(w, "no sources indexed")
		return nil
	}
	for _, s := range sources {
		if s.Skipped > 0 {
			fmt.Fprintf(w, "%-40s %6d documents (%d rows skipped)\n", s.Source, s.Documents, s.Skipped)
			continue
		}
		fmt.Fprintf(w, "%-40s %6d documents\n", s.Source, s.Documents)
	}
	return nil
}
