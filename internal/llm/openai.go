package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to an OpenAI-compatible chat completions API.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient returns a runtime for the API at baseURL (the default endpoint when empty).
func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func openAIRequest(req ChatRequest, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: float32(req.Options.Temperature),
		Stream:      stream,
	}
}

// Chat sends a blocking chat completion and returns the trimmed reply.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openAIRequest(req, false))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ChatStream opens a streamed chat completion.
func (c *OpenAIClient) ChatStream(ctx context.Context, req ChatRequest) (FragmentIterator, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openAIRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Next() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("chat completion stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
