package models

import (
	"fmt"
	"strings"
)

// QueryRequest is a question submitted over the API or CLI.
type QueryRequest struct {
	Query string `json:"query"`
	// K is the requested retrieval depth; zero means the configured default.
	K int `json:"k,omitempty"`
}

// Validate trims the query and rejects empty input.
func (q *QueryRequest) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.K < 0 {
		q.K = 0
	}
	return nil
}
