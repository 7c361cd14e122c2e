// Package stream relays a blocking fragment iterator into a bounded, ordered channel consumed
// without blocking on the model call itself.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/llm"
	"github.com/hyperjump/bunbetsu/internal/models"
)

// DefaultCapacity is the hand-off queue size used when none is configured.
const DefaultCapacity = 64

// ErrClosed is returned by Poll once the terminal fragment has been consumed.
var ErrClosed = errors.New("stream: closed")

// Opener starts the blocking call that produces fragments.
type Opener func(ctx context.Context) (llm.FragmentIterator, error)

// Options configure a Bridge.
type Options struct {
	// Capacity bounds the hand-off queue; values below 1 select DefaultCapacity.
	Capacity int
	// ErrorMessage maps a producer error to the payload of the error fragment.
	// When nil the error text is used.
	ErrorMessage func(error) string
	// OnDone is called once by the producer with the full text and the terminal error, if any.
	OnDone func(text string, err error)
	Logger *zap.Logger
}

// Stream is one in-flight streamed answer. Fragments arrive on C in production order:
// zero or more chunks, then exactly one complete or error fragment, then C is closed.
type Stream struct {
	ch     chan models.StreamFragment
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	text string
	err  error
}

// Bridge starts a producer goroutine that drives open's iterator and returns the consuming side.
// The producer blocks when the queue is full and stops at its next hand-off once ctx is
// cancelled or Close is called.
func Bridge(ctx context.Context, open Opener, opts Options) *Stream {
	if opts.Capacity < 1 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ch:     make(chan models.StreamFragment, opts.Capacity),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.produce(ctx, open, opts)
	return s
}

// Text returns a finished stream holding text as a single chunk followed by completion.
func Text(text string) *Stream {
	s := &Stream{
		ch:     make(chan models.StreamFragment, 2),
		cancel: func() {},
		done:   make(chan struct{}),
		text:   text,
	}
	s.ch <- models.StreamFragment{Kind: models.FragmentChunk, Payload: text}
	s.ch <- models.StreamFragment{Kind: models.FragmentComplete, Payload: text}
	close(s.ch)
	close(s.done)
	return s
}

// Failed returns a finished stream holding a single error fragment.
func Failed(message string, err error) *Stream {
	s := &Stream{
		ch:     make(chan models.StreamFragment, 1),
		cancel: func() {},
		done:   make(chan struct{}),
		text:   message,
		err:    err,
	}
	s.ch <- models.StreamFragment{Kind: models.FragmentError, Payload: message}
	close(s.ch)
	close(s.done)
	return s
}

func (s *Stream) produce(ctx context.Context, open Opener, opts Options) {
	defer close(s.done)
	defer close(s.ch)
	defer s.cancel()

	var b strings.Builder
	finish := func(err error) {
		s.mu.Lock()
		s.text, s.err = b.String(), err
		s.mu.Unlock()
		if opts.OnDone != nil {
			opts.OnDone(b.String(), err)
		}
		if err != nil {
			msg := err.Error()
			if opts.ErrorMessage != nil {
				msg = opts.ErrorMessage(err)
			}
			s.send(ctx, models.StreamFragment{Kind: models.FragmentError, Payload: msg})
			return
		}
		s.send(ctx, models.StreamFragment{Kind: models.FragmentComplete, Payload: b.String()})
	}

	it, err := open(ctx)
	if err != nil {
		opts.Logger.Warn("stream open failed", zap.Error(err))
		finish(err)
		return
	}
	defer it.Close()

	for {
		frag, err := it.Next()
		if errors.Is(err, io.EOF) {
			finish(nil)
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				opts.Logger.Debug("stream cancelled", zap.Error(err))
			} else {
				opts.Logger.Warn("stream producer failed", zap.Error(err))
			}
			finish(err)
			return
		}
		if frag == "" {
			continue
		}
		b.WriteString(frag)
		if !s.send(ctx, models.StreamFragment{Kind: models.FragmentChunk, Payload: frag}) {
			opts.Logger.Debug("stream consumer gone", zap.Int("produced_bytes", b.Len()))
			s.mu.Lock()
			s.text, s.err = b.String(), ctx.Err()
			s.mu.Unlock()
			if opts.OnDone != nil {
				opts.OnDone(b.String(), ctx.Err())
			}
			return
		}
	}
}

// send hands f to the consumer, waiting while the queue is full. It reports false once the
// stream was cancelled before f could be enqueued.
func (s *Stream) send(ctx context.Context, f models.StreamFragment) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case s.ch <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// C returns the fragment channel. It is closed after the terminal fragment.
func (s *Stream) C() <-chan models.StreamFragment { return s.ch }

// Poll waits up to timeout for the next fragment. ok is false on timeout; ErrClosed is
// returned once the stream is exhausted.
func (s *Stream) Poll(timeout time.Duration) (f models.StreamFragment, ok bool, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f, open := <-s.ch:
		if !open {
			return models.StreamFragment{}, false, ErrClosed
		}
		return f, true, nil
	case <-timer.C:
		return models.StreamFragment{}, false, nil
	}
}

// Close cancels the producer. Fragments already queued stay readable.
func (s *Stream) Close() { s.cancel() }

// Done is closed once the producer has exited.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Result returns the text produced so far and the terminal error. It is final once Done is closed.
func (s *Stream) Result() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.err
}

// Collect drains s and returns the concatenated chunks and the terminal fragment.
func Collect(s *Stream) (string, models.StreamFragment) {
	var b strings.Builder
	var last models.StreamFragment
	for f := range s.C() {
		if f.Kind == models.FragmentChunk {
			b.WriteString(f.Payload)
			continue
		}
		last = f
	}
	return b.String(), last
}
