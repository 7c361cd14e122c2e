package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/bunbetsu/internal/ingest"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/rag"
	"github.com/hyperjump/bunbetsu/internal/stream"
)

const maxQueryBodyBytes = 64 << 10

type chatRequest struct {
	Prompt string `json:"prompt"`
	K      int    `json:"k,omitempty"`
}

type chatResponse struct {
	Response        string    `json:"response"`
	Latency         float64   `json:"latency"`
	Timestamp       time.Time `json:"timestamp"`
	ContextFound    bool      `json:"context_found"`
	SourceDocuments int       `json:"source_documents"`
	Mode            string    `json:"mode"`
}

type botResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (*models.QueryRequest, bool) {
	var body chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	q := &models.QueryRequest{Query: body.Prompt, K: body.K}
	if err := q.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return nil, false
	}
	return q, true
}

func (s *Server) handleChatBlocking(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	res := s.svc.BlockingQuery(r.Context(), q.Query, q.K, rag.ModeBlocking)
	respondJSON(w, http.StatusOK, chatResponse{
		Response:        res.Response,
		Latency:         res.Latency,
		Timestamp:       res.Timestamp,
		ContextFound:    res.CandidateCount > 0,
		SourceDocuments: res.CandidateCount,
		Mode:            rag.ModeBlocking,
	})
}

func (s *Server) handleBotRespond(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	res := s.svc.BlockingQuery(r.Context(), q.Query, q.K, rag.ModeBotBlocking)
	respondJSON(w, http.StatusOK, botResponse{Reply: res.Response})
}

func (s *Server) handleChatStreaming(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, rag.ModeStreaming, "response")
}

func (s *Server) handleBotStream(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, rag.ModeBotStreaming, "reply")
}

// serveStream relays the answer stream as server-sent events. The completion event carries the
// full text under textKey, followed by a [DONE] sentinel.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, mode, textKey string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming is not supported by response writer")
		return
	}
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	start := time.Now()
	st := s.svc.StreamingQuery(r.Context(), q.Query, q.K, mode)
	defer st.Close()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		f, ok, err := st.Poll(s.pollInterval)
		if errors.Is(err, stream.ErrClosed) {
			break
		}
		if !ok {
			if r.Context().Err() != nil {
				s.logger.Debug("stream client disconnected", zap.String("mode", mode))
				return
			}
			continue
		}
		var event any = f
		if f.Kind == models.FragmentComplete {
			event = map[string]any{
				"type":      models.FragmentComplete,
				textKey:     f.Payload,
				"latency":   time.Since(start).Seconds(),
				"timestamp": time.Now(),
			}
		}
		if err := writeEvent(w, event); err != nil {
			s.logger.Debug("stream write failed", zap.Error(err))
			return
		}
		flusher.Flush()
	}
	if _, err := io.WriteString(w, "data: [DONE]\n\n"); err == nil {
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	s.logger.Info("upload received", zap.String("filename", header.Filename), zap.Int("bytes", len(content)))
	res, err := s.svc.SaveAndIngest(r.Context(), header.Filename, content)
	switch {
	case errors.Is(err, rag.ErrInvalidSource), errors.Is(err, ingest.ErrUnsupported):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("upload ingestion failed", zap.String("filename", header.Filename), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"filename":     res.Source,
		"ingested":     res.Documents,
		"skipped_rows": res.Skipped,
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.svc.Sources(r.Context())
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	n, err := s.svc.RemoveSource(r.Context(), name)
	switch {
	case errors.Is(err, rag.ErrInvalidSource):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("remove source failed", zap.String("source", name), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	case n == 0:
		respondError(w, http.StatusNotFound, "source not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"source": name, "removed": n})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reset(r.Context()); err != nil {
		s.logger.Error("reset failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.SearchInfo(r.Context()))
}

func (s *Server) handleMonitorFix(w http.ResponseWriter, r *http.Request) {
	results, err := s.svc.Reindex(r.Context())
	info := s.svc.SearchInfo(r.Context())
	body := map[string]any{
		"status":         "ok",
		"sources":        results,
		"document_count": info.DocumentCount,
		"search_mode":    info.SearchMode,
	}
	if err != nil {
		s.logger.Error("reindex failed", zap.Error(err))
		body["status"] = "partial"
		body["error"] = err.Error()
		respondJSON(w, http.StatusInternalServerError, body)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": ServiceName})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
