package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwbudde/layerpaint/internal/canvas"
)

// pingInterval keeps idle SSE connections open through proxies.
var pingInterval = 30 * time.Second

// handleStream handles GET /api/v1/events: a server-sent event stream of
// canvas invalidations. The first event describes the current state.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.editor.Subscribe()
	defer s.editor.Unsubscribe(events)

	c := s.editor.Canvas()
	initial := canvas.Invalidation{Seq: c.Seq(), Reason: "sync", Timestamp: time.Now().UTC()}
	if err := writeSSEEvent(w, initial); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected")
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes ev as one "invalidate" event.
func writeSSEEvent(w http.ResponseWriter, ev canvas.Invalidation) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: invalidate\nid: %d\ndata: %s\n\n", ev.Seq, data)
	return err
}
