// Package server provides the HTTP API for bunbetsu.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/config"
	"github.com/hyperjump/bunbetsu/internal/metrics"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/stream"
)

// ServiceName is reported by the health endpoints.
const ServiceName = "bunbetsu"

// Service is the question-answering and corpus API the handlers call.
type Service interface {
	BlockingQuery(ctx context.Context, query string, k int, mode string) models.QueryResult
	StreamingQuery(ctx context.Context, query string, k int, mode string) *stream.Stream
	SaveAndIngest(ctx context.Context, name string, content []byte) (models.IngestResult, error)
	Sources(ctx context.Context) ([]models.IngestResult, error)
	RemoveSource(ctx context.Context, source string) (int, error)
	Reset(ctx context.Context) error
	Reindex(ctx context.Context) ([]models.IngestResult, error)
	SearchInfo(ctx context.Context) models.SearchInfo
}

// Server is the HTTP server for the bunbetsu API.
type Server struct {
	svc          Service
	config       config.ServerConfig
	pollInterval time.Duration
	metrics      *metrics.Metrics
	limiter      *rateLimiter
	logger       *zap.Logger
	server       *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics instruments every route and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server for svc.
func NewServer(svc Service, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	poll := time.Duration(cfg.Stream.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	s := &Server{
		svc:          svc,
		config:       cfg.Server,
		pollInterval: poll,
		logger:       logger,
	}
	if cfg.Server.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)

	// Streaming responses must not be cut by a request timeout or buffered by compression.
	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Post("/api/chat/blocking", s.handleChatBlocking)
		r.Post("/api/chat/streaming", s.handleChatStreaming)
		r.Post("/api/bot/respond", s.handleBotRespond)
		r.Post("/api/bot/stream", s.handleBotStream)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Post("/api/upload", s.handleUpload)
		r.Get("/api/sources", s.handleSources)
		r.Delete("/api/sources/{name}", s.handleRemoveSource)
		r.Post("/api/reset", s.handleReset)
		r.Get("/api/monitor/rag", s.handleMonitor)
		r.Post("/api/monitor/rag/fix", s.handleMonitorFix)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
