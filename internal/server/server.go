// Package server exposes the voicelay HTTP surface: chunk ingestion,
// end-of-utterance processing, reply download, streaming, status and the
// operational endpoints.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicelay/voicelay/internal/cache"
	"github.com/voicelay/voicelay/internal/chunkstore"
	"github.com/voicelay/voicelay/internal/convo"
	"github.com/voicelay/voicelay/internal/health"
	"github.com/voicelay/voicelay/internal/observe"
	"github.com/voicelay/voicelay/internal/pipeline"
)

// defaultSession is used when a client does not send X-Session-ID. It keeps
// the original single-speaker client working unchanged.
const defaultSession = "default"

// maxChunkBytes caps one ingested chunk body.
const maxChunkBytes = 10 << 20

// Server wires the voicelay HTTP handlers. Construct with New and mount the
// result of Handler.
type Server struct {
	chunks   *chunkstore.Store
	runner   *pipeline.Runner
	cache    *cache.Cache
	registry *convo.Registry
	health   *health.Handler
	metrics  *observe.Metrics
	logger   *slog.Logger
}

// New returns a Server over the given subsystems. metrics and logger fall
// back to the package defaults when nil.
func New(
	chunks *chunkstore.Store,
	runner *pipeline.Runner,
	replyCache *cache.Cache,
	registry *convo.Registry,
	healthHandler *health.Handler,
	metrics *observe.Metrics,
	logger *slog.Logger,
) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		chunks:   chunks,
		runner:   runner,
		cache:    replyCache,
		registry: registry,
		health:   healthHandler,
		metrics:  metrics,
		logger:   logger,
	}
}

// Handler returns the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChunk)
	mux.HandleFunc("POST /chat/end", s.handleEnd)
	mux.HandleFunc("GET /chat/stream", s.handleStream)
	mux.HandleFunc("GET /response", s.handleLatest)
	mux.HandleFunc("GET /response/{name}", s.handleResponse)
	mux.HandleFunc("GET /status", s.handleStatus)
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(s.metrics)(mux)
}

// session resolves the session id for a request.
func session(r *http.Request) string {
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		return sid
	}
	return defaultSession
}

// handleChunk accepts one raw PCM chunk as the request body.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "No data received")
		return
	}

	ref, err := s.chunks.Ingest(session(r), body)
	if err != nil {
		s.logger.Error("chunk ingest failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save audio chunk")
		return
	}
	s.metrics.RecordChunkIngested(r.Context(), "http")
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Chunk received",
		"filename": ref.Name,
	})
}

// handleEnd runs the utterance pipeline for the session.
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	sid := session(r)
	res, err := s.runner.Run(r.Context(), sid)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoUtterance) {
			writeError(w, http.StatusBadRequest, "No audio data found")
			return
		}
		s.logger.Error("pipeline failed", "session", sid, "error", err)
		s.chunks.Clear(sid)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleLatest streams the most recently synthesized reply.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	name, err := s.cache.FetchLatest()
	if err != nil {
		writeError(w, http.StatusNotFound, "No audio files available")
		return
	}
	s.serve(w, r, name)
}

// handleResponse streams one reply by name.
func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	name, ok := cache.SanitizeName(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	s.serve(w, r, name)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, name string) {
	err := s.cache.ServeFile(w, r, name)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrNotFound):
		writeError(w, http.StatusNotFound, "File not found")
	default:
		// The transfer may already be underway, so only log.
		s.logger.Warn("serving reply failed", "file", name, "error", err)
	}
}

// handleStatus reports liveness plus the size of both on-disk stores.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "running",
		"temp_files_count": s.chunks.Count(),
		"tts_files_count":  s.cache.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
