// Package ollama is a minimal HTTP client for the Ollama runtime API shared by the embedding
// and language-model adapters.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds non-streaming calls.
const DefaultTimeout = 120 * time.Second

// Client talks to one Ollama endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for baseURL. A zero timeout selects DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the endpoint the client was built for.
func (c *Client) BaseURL() string { return c.baseURL }

// HTTPStatusError is returned for non-2xx responses.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, e.Body)
}

// Temporary reports whether retrying later could succeed.
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (c *Client) newRequest(ctx context.Context, path string, payload any, operation string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// PostJSON sends payload to path and decodes a single JSON response into out.
func (c *Client) PostJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	req, err := c.newRequest(ctx, path, payload, operation)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// LineStream reads a newline-delimited JSON response one object at a time.
type LineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Decode reads the next line into out. It returns io.EOF when the body is exhausted.
func (s *LineStream) Decode(out any) error {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, out); err != nil {
			return fmt.Errorf("decode stream line: %w", err)
		}
		return nil
	}
	if err := s.scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// Close releases the response body.
func (s *LineStream) Close() error {
	return s.body.Close()
}

// PostStream sends payload and returns the NDJSON response body. Streaming requests are not
// bound by the client timeout; ctx governs their lifetime.
func (c *Client) PostStream(ctx context.Context, path string, payload any, operation string) (*LineStream, error) {
	req, err := c.newRequest(ctx, path, payload, operation)
	if err != nil {
		return nil, err
	}
	streaming := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streaming.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama %s request: %w", operation, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusError(operation, resp)
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &LineStream{body: resp.Body, scanner: sc}, nil
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
