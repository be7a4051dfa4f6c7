package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"net/http"

	"github.com/coder/websocket"

	"github.com/voicelay/voicelay/internal/pipeline"
)

// streamResult is the JSON frame sent back over the socket after "end".
type streamResult struct {
	pipeline.Result
	Error string `json:"error,omitempty"`
}

// handleStream upgrades to a WebSocket and ingests an utterance over it.
// Binary frames are PCM chunks; the text frame "end" runs the pipeline and
// the result comes back as a JSON text frame. A client may stream several
// utterances over one socket.
//
// Without an X-Session-ID header each socket gets its own fresh session, so
// two concurrent streams never interleave audio or history.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	sid := r.Header.Get("X-Session-ID")
	if sid == "" {
		sid, _ = s.registry.Create()
	}
	log := s.logger.With("session", sid)
	log.Info("stream opened")

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			// Normal closure and client disconnects both end the stream.
			log.Info("stream closed", "reason", err)
			s.chunks.Clear(sid)
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if _, err := s.chunks.Ingest(sid, data); err != nil {
				log.Warn("stream chunk rejected", "error", err)
				continue
			}
			s.metrics.RecordChunkIngested(ctx, "websocket")

		case websocket.MessageText:
			if strings.TrimSpace(string(data)) != "end" {
				continue
			}
			if err := s.streamEnd(ctx, conn, sid); err != nil {
				log.Warn("stream write failed", "error", err)
				return
			}
		}
	}
}

// streamEnd runs the pipeline and writes the result frame.
func (s *Server) streamEnd(ctx context.Context, conn *websocket.Conn, sid string) error {
	var frame streamResult
	res, err := s.runner.Run(ctx, sid)
	switch {
	case err == nil:
		frame.Result = *res
	case errors.Is(err, pipeline.ErrNoUtterance):
		frame.Error = "No audio data found"
	default:
		s.logger.Error("stream pipeline failed", "session", sid, "error", err)
		s.chunks.Clear(sid)
		frame.Error = "Internal server error"
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}
