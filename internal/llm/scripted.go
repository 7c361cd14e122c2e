package llm

import (
	"context"
	"io"
	"sync"
)

// Scripted is an in-process Runtime with canned replies per model. It backs offline runs and tests.
type Scripted struct {
	mu sync.Mutex
	// Replies maps a model to its full reply; Fragments, when set, is streamed instead.
	Replies   map[string]string
	Fragments map[string][]string
	// Errors maps a model to the error every call against it returns.
	Errors map[string]error
	// StreamErrors maps a model to an error returned after its fragments were streamed.
	StreamErrors map[string]error
	calls        []ChatRequest
}

// Calls returns every request received, in order.
func (s *Scripted) Calls() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.calls...)
}

func (s *Scripted) record(req ChatRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return s.Errors[req.Model]
}

// Chat returns the canned reply for req.Model.
func (s *Scripted) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if err := s.record(req); err != nil {
		return "", err
	}
	if frags, ok := s.Fragments[req.Model]; ok {
		out := ""
		for _, f := range frags {
			out += f
		}
		return out, nil
	}
	return s.Replies[req.Model], nil
}

// ChatStream streams the canned fragments (or the whole reply as one fragment) for req.Model.
func (s *Scripted) ChatStream(ctx context.Context, req ChatRequest) (FragmentIterator, error) {
	if err := s.record(req); err != nil {
		return nil, err
	}
	frags, ok := s.Fragments[req.Model]
	if !ok {
		frags = []string{s.Replies[req.Model]}
	}
	return &sliceIterator{ctx: ctx, frags: frags, tail: s.StreamErrors[req.Model]}, nil
}

type sliceIterator struct {
	ctx   context.Context
	frags []string
	tail  error
	pos   int
}

func (it *sliceIterator) Next() (string, error) {
	if err := it.ctx.Err(); err != nil {
		return "", err
	}
	if it.pos < len(it.frags) {
		it.pos++
		return it.frags[it.pos-1], nil
	}
	if it.tail != nil {
		return "", it.tail
	}
	return "", io.EOF
}

func (it *sliceIterator) Close() error { return nil }
