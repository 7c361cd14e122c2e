// Package answer turns reranked candidates into the reply shown to the user: a fixed not-found
// message, the top rule verbatim, or a paraphrase of that single rule by the language model.
package answer

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/config"
	"github.com/hyperjump/bunbetsu/internal/llm"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/stream"
)

// Fixed user-visible replies.
const (
	NotFoundMessage = "申し訳ございませんが、該当する情報がありません。北九州市のホームページでご確認いただくか、お住まいの区役所にお問い合わせください。"
	ApologyMessage  = "申し訳ございませんが、現在AIサービスが利用できません。しばらく後でお試しください。"
)

// Path names the branch that produced a reply.
type Path string

const (
	PathNotFound   Path = "not_found"
	PathVerbatim   Path = "verbatim"
	PathParaphrase Path = "paraphrase"
	PathApology    Path = "apology"
)

// Observer receives per-call language-model outcomes and the chosen path.
type Observer interface {
	ObserveLLMCall(model, operation string, d time.Duration, err error)
	ObserveAnswer(path string)
}

// Synthesizer selects the reply for a ranked candidate list.
type Synthesizer struct {
	runtime  llm.Runtime
	cfg      config.LLMConfig
	capacity int
	logger   *zap.Logger
	observer Observer
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// WithObserver records model calls and answer paths.
func WithObserver(o Observer) Option {
	return func(s *Synthesizer) { s.observer = o }
}

// WithQueueCapacity sets the hand-off queue size of streamed paraphrases.
func WithQueueCapacity(n int) Option {
	return func(s *Synthesizer) { s.capacity = n }
}

// New returns a synthesizer calling runtime with the models in cfg.
func New(runtime llm.Runtime, cfg config.LLMConfig, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		runtime:  runtime,
		cfg:      cfg,
		capacity: stream.DefaultCapacity,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verbatim renders a rule's how-to-dispose field followed by its note, if any.
func Verbatim(doc *models.Document) string {
	how := doc.How()
	if note := doc.Note(); note != "" {
		return how + "\n備考: " + note
	}
	return how
}

// Select returns the path for candidates and the top candidate, if any.
func Select(candidates []*models.Candidate) (Path, *models.Candidate) {
	if len(candidates) == 0 || candidates[0] == nil || candidates[0].Document == nil {
		return PathNotFound, nil
	}
	top := candidates[0]
	if top.Document.How() != "" {
		return PathVerbatim, top
	}
	return PathParaphrase, top
}

// Answer returns the blocking reply for query.
func (s *Synthesizer) Answer(ctx context.Context, query string, candidates []*models.Candidate) (string, Path) {
	path, top := Select(candidates)
	switch path {
	case PathNotFound:
		s.observe(path)
		return NotFoundMessage, path
	case PathVerbatim:
		s.observe(path)
		return Verbatim(top.Document), path
	}

	req := s.request(query, top.Document)
	for _, model := range s.models() {
		req.Model = model
		start := time.Now()
		out, err := s.runtime.Chat(ctx, req)
		s.observeCall(model, "chat", time.Since(start), err)
		if err == nil {
			s.observe(PathParaphrase)
			return strings.TrimSpace(out), PathParaphrase
		}
		s.logger.Warn("paraphrase failed", zap.String("model", model), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	s.observe(PathApology)
	return ApologyMessage, PathApology
}

// Stream returns the streamed reply for query. Direct paths yield their text as one chunk; the
// paraphrase path relays the model through the bridge, trying the fallback model if the primary
// cannot be opened. A failure ends the stream with an error fragment carrying the apology.
func (s *Synthesizer) Stream(ctx context.Context, query string, candidates []*models.Candidate, onDone func(string, error)) (*stream.Stream, Path) {
	path, top := Select(candidates)
	switch path {
	case PathNotFound:
		s.observe(path)
		return s.finished(NotFoundMessage, onDone), path
	case PathVerbatim:
		s.observe(path)
		return s.finished(Verbatim(top.Document), onDone), path
	}

	req := s.request(query, top.Document)
	open := func(ctx context.Context) (llm.FragmentIterator, error) {
		var errs []error
		for _, model := range s.models() {
			req.Model = model
			start := time.Now()
			it, err := s.runtime.ChatStream(ctx, req)
			s.observeCall(model, "chat_stream", time.Since(start), err)
			if err == nil {
				return it, nil
			}
			s.logger.Warn("paraphrase stream failed to open", zap.String("model", model), zap.Error(err))
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
		return nil, errors.Join(errs...)
	}
	done := func(text string, err error) {
		if err != nil {
			s.observe(PathApology)
		} else {
			s.observe(PathParaphrase)
		}
		if onDone != nil {
			onDone(text, err)
		}
	}
	return stream.Bridge(ctx, open, stream.Options{
		Capacity:     s.capacity,
		ErrorMessage: func(error) string { return ApologyMessage },
		OnDone:       done,
		Logger:       s.logger,
	}), PathParaphrase
}

func (s *Synthesizer) finished(text string, onDone func(string, error)) *stream.Stream {
	if onDone != nil {
		onDone(text, nil)
	}
	return stream.Text(text)
}

func (s *Synthesizer) models() []string {
	ids := []string{s.cfg.Model}
	if fb := s.cfg.FallbackModel; fb != "" && fb != s.cfg.Model {
		ids = append(ids, fb)
	}
	return ids
}

func (s *Synthesizer) request(query string, doc *models.Document) llm.ChatRequest {
	return llm.ChatRequest{
		Messages: Prompt(query, doc),
		Options:  llm.Options{Temperature: s.cfg.Temperature, NumCtx: s.cfg.NumCtx},
	}
}

func (s *Synthesizer) observe(p Path) {
	if s.observer != nil {
		s.observer.ObserveAnswer(string(p))
	}
}

func (s *Synthesizer) observeCall(model, op string, d time.Duration, err error) {
	if s.observer != nil {
		s.observer.ObserveLLMCall(model, op, d, err)
	}
}
