package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/hyperjump/bunbetsu/internal/ollama"
)

// OllamaClient calls the native /api/chat endpoint.
type OllamaClient struct {
	client *ollama.Client
}

// NewOllamaClient returns a runtime backed by client.
func NewOllamaClient(client *ollama.Client) *OllamaClient {
	return &OllamaClient{client: client}
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func ollamaPayload(req ChatRequest, stream bool) map[string]any {
	options := map[string]any{"temperature": req.Options.Temperature}
	if req.Options.NumCtx > 0 {
		options["num_ctx"] = req.Options.NumCtx
	}
	return map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   stream,
		"options":  options,
	}
}

// Chat sends a blocking chat request and returns the trimmed reply.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	var resp ollamaChatResponse
	if err := c.client.PostJSON(ctx, "/api/chat", ollamaPayload(req, false), &resp, "chat"); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", errors.New("ollama chat: " + resp.Error)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// ChatStream opens a streamed chat request.
func (c *OllamaClient) ChatStream(ctx context.Context, req ChatRequest) (FragmentIterator, error) {
	lines, err := c.client.PostStream(ctx, "/api/chat", ollamaPayload(req, true), "chat stream")
	if err != nil {
		return nil, err
	}
	return &ollamaStream{lines: lines}, nil
}

type ollamaStream struct {
	lines *ollama.LineStream
	done  bool
}

func (s *ollamaStream) Next() (string, error) {
	for !s.done {
		var resp ollamaChatResponse
		if err := s.lines.Decode(&resp); err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if resp.Error != "" {
			return "", errors.New("ollama chat stream: " + resp.Error)
		}
		s.done = resp.Done
		if resp.Message.Content != "" {
			return resp.Message.Content, nil
		}
	}
	return "", io.EOF
}

func (s *ollamaStream) Close() error { return s.lines.Close() }
