// Package llm talks to the language-model runtime: blocking chat, streamed chat, and a per-model
// circuit breaker around both.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/config"
	"github.com/hyperjump/bunbetsu/internal/ollama"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are sampling options passed to the runtime.
type Options struct {
	Temperature float64
	NumCtx      int
}

// ChatRequest is a chat call against one model.
type ChatRequest struct {
	Model    string
	Messages []Message
	Options  Options
}

// FragmentIterator yields streamed text fragments. Next blocks until the next fragment arrives
// and returns io.EOF once the runtime has sent its done marker.
type FragmentIterator interface {
	Next() (string, error)
	Close() error
}

// Runtime is a language-model runtime.
type Runtime interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	ChatStream(ctx context.Context, req ChatRequest) (FragmentIterator, error)
}

// New builds the runtime described by cfg, wrapped in a circuit breaker when enabled.
func New(cfg config.LLMConfig, breaker config.BreakerConfig, logger *zap.Logger) (Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var rt Runtime
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		rt = NewOllamaClient(ollama.New(cfg.BaseURL, timeout))
	case "openai":
		rt = NewOpenAIClient(cfg.BaseURL, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: ollama, openai)", cfg.Provider)
	}
	if breaker.Enabled {
		rt = NewBreaker(rt, breaker, logger)
	}
	return rt, nil
}

// Collect drains it into one string and closes it.
func Collect(it FragmentIterator) (string, error) {
	defer it.Close()
	var b strings.Builder
	for {
		frag, err := it.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return b.String(), err
		}
		b.WriteString(frag)
	}
}
