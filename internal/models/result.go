package models

import "time"

// Candidate is a document scored for one query. It never outlives the request.
type Candidate struct {
	Document      *Document `json:"document"`
	LexicalScore  float64   `json:"lexical_score"`
	SemanticScore float64   `json:"semantic_score"`
	CombinedScore float64   `json:"combined_score"`
	// Order is the position at which the document was first retrieved across all query variants.
	Order int `json:"order"`
}

// FragmentKind tags a StreamFragment.
type FragmentKind string

const (
	FragmentChunk    FragmentKind = "chunk"
	FragmentComplete FragmentKind = "complete"
	FragmentError    FragmentKind = "error"
)

// StreamFragment is one ordered element of a streamed answer.
// A stream is zero or more chunks followed by exactly one complete or error fragment.
type StreamFragment struct {
	Kind    FragmentKind `json:"type"`
	Payload string       `json:"content"`
}

// Terminal reports whether f ends the stream.
func (f StreamFragment) Terminal() bool {
	return f.Kind == FragmentComplete || f.Kind == FragmentError
}

// QueryResult is the blocking answer to a question.
type QueryResult struct {
	Response       string    `json:"response"`
	CandidateCount int       `json:"candidate_count"`
	Latency        float64   `json:"latency"`
	Timestamp      time.Time `json:"timestamp"`
}

// Weights are the hybrid fusion weights.
type Weights struct {
	Semantic float64 `json:"semantic"`
	Lexical  float64 `json:"lexical"`
}

// SearchInfo describes the retriever currently serving queries.
type SearchInfo struct {
	SearchMode       string  `json:"search_mode"`
	DocumentCount    int     `json:"document_count"`
	Weights          Weights `json:"weights"`
	EmbeddingModel   string  `json:"embedding_model"`
	LexicalAvailable bool    `json:"lexical_available"`
	HybridAvailable  bool    `json:"hybrid_available"`
	DiskUsageBytes   int64   `json:"disk_usage_bytes,omitempty"`
}

// ChatLogEntry is one answered question as recorded in the chat log.
type ChatLogEntry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Mode           string    `json:"mode"`
	Prompt         string    `json:"prompt"`
	Response       string    `json:"response"`
	Latency        float64   `json:"latency"`
	CandidateCount int       `json:"candidate_count"`
}
