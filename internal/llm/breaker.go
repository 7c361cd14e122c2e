package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/config"
)

// Breaker decorates a Runtime with one circuit breaker per model. An open breaker fails calls
// immediately so the fallback model is tried without waiting on a dead runtime.
type Breaker struct {
	inner  Runtime
	cfg    config.BreakerConfig
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// NewBreaker wraps inner.
func NewBreaker(inner Runtime, cfg config.BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		inner:    inner,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (b *Breaker) breaker(model string) *gobreaker.CircuitBreaker[any] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[model]; ok {
		return cb
	}
	settings := gobreaker.Settings{
		Name:        model,
		MaxRequests: b.cfg.HalfOpenMaxCalls,
		Timeout:     time.Duration(b.cfg.OpenTimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < b.cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= b.cfg.FailureRatio
		},
		// A caller giving up is not a runtime failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state change",
				zap.String("model", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	cb := gobreaker.NewCircuitBreaker[any](settings)
	b.breakers[model] = cb
	return cb
}

// Chat runs the call through the model's breaker.
func (b *Breaker) Chat(ctx context.Context, req ChatRequest) (string, error) {
	out, err := b.breaker(req.Model).Execute(func() (any, error) {
		return b.inner.Chat(ctx, req)
	})
	if err != nil {
		return "", unavailable(req.Model, err)
	}
	return out.(string), nil
}

// ChatStream runs opening the stream through the model's breaker. Failures after the stream
// opened are reported by the iterator and not counted.
func (b *Breaker) ChatStream(ctx context.Context, req ChatRequest) (FragmentIterator, error) {
	out, err := b.breaker(req.Model).Execute(func() (any, error) {
		return b.inner.ChatStream(ctx, req)
	})
	if err != nil {
		return nil, unavailable(req.Model, err)
	}
	return out.(FragmentIterator), nil
}

// ErrModelUnavailable is returned without calling the runtime while a model's breaker is open.
var ErrModelUnavailable = errors.New("llm: model unavailable")

func unavailable(model string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", ErrModelUnavailable, model, err)
	}
	return err
}

// IsCircuitOpen reports whether err came from an open or saturated breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrModelUnavailable)
}
