package rag

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/stream"
)

// Search returns the reranked candidates for query without synthesizing a reply.
func (s *Service) Search(ctx context.Context, query string, k int) []*models.Candidate {
	return s.reranker.Rerank(ctx, query, k)
}

// BlockingQuery answers query in one piece. It never fails: retrieval problems narrow the
// result and model failures produce the apology message.
func (s *Service) BlockingQuery(ctx context.Context, query string, k int, mode string) models.QueryResult {
	start := time.Now()
	candidates := s.reranker.Rerank(ctx, query, k)
	reply, path := s.synth.Answer(ctx, query, candidates)
	latency := time.Since(start)

	res := models.QueryResult{
		Response:       reply,
		CandidateCount: len(candidates),
		Latency:        latency.Seconds(),
		Timestamp:      time.Now(),
	}
	s.logger.Info("query answered",
		zap.String("mode", mode),
		zap.String("path", string(path)),
		zap.Int("candidates", len(candidates)),
		zap.Duration("latency", latency),
	)
	if s.metrics != nil {
		s.metrics.ObserveQuery(mode, latency, len(candidates))
	}
	s.appendChatLog(ctx, mode, query, res)
	return res
}

// StreamingQuery answers query as a fragment stream. Retrieval runs before it returns; the reply
// is produced on the stream. The chat log entry is written once the stream finishes.
func (s *Service) StreamingQuery(ctx context.Context, query string, k int, mode string) *stream.Stream {
	start := time.Now()
	candidates := s.reranker.Rerank(ctx, query, k)
	done := func(text string, err error) {
		latency := time.Since(start)
		if err != nil {
			s.logger.Warn("streamed answer ended with error", zap.String("mode", mode), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.ObserveQuery(mode, latency, len(candidates))
		}
		s.appendChatLog(ctx, mode, query, models.QueryResult{
			Response:       text,
			CandidateCount: len(candidates),
			Latency:        latency.Seconds(),
			Timestamp:      time.Now(),
		})
	}
	st, path := s.synth.Stream(ctx, query, candidates, done)
	s.logger.Debug("streaming answer", zap.String("path", string(path)), zap.Int("candidates", len(candidates)))
	return st
}

func (s *Service) appendChatLog(ctx context.Context, mode, prompt string, res models.QueryResult) {
	if !s.cfg.Storage.ChatLog {
		return
	}
	entry := &models.ChatLogEntry{
		Timestamp:      res.Timestamp,
		Mode:           mode,
		Prompt:         prompt,
		Response:       res.Response,
		Latency:        res.Latency,
		CandidateCount: res.CandidateCount,
	}
	// The request may already be cancelled when a stream finishes.
	if err := s.db.AppendChatLog(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("failed to write chat log", zap.Error(err))
	}
}

// RecentChats returns up to limit chat log entries, newest first.
func (s *Service) RecentChats(ctx context.Context, limit int) ([]*models.ChatLogEntry, error) {
	return s.db.RecentChatLog(ctx, limit)
}
