package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleSSE streams a request's progress as Server-Sent Events. Each
// event carries its type in the SSE event field and the full envelope
// as JSON data; the stream ends after the terminal event.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	requestID := r.PathValue("id")
	bus, ok := s.orchestrator.Bus(requestID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown or finished request")
		return
	}

	events, cancel := bus.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("Event encoding failed", map[string]interface{}{
					"operation":  "sse_stream",
					"request_id": requestID,
					"error":      err.Error(),
				})
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
