package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Progress streams carry no credentials
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleWebSocket streams a request's progress over a WebSocket. The
// server writes JSON event envelopes and closes the connection after
// the terminal event.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	bus, ok := s.orchestrator.Bus(requestID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown or finished request")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", map[string]interface{}{
			"operation":  "ws_stream",
			"request_id": requestID,
			"error":      err.Error(),
		})
		return
	}
	defer conn.Close()

	events, cancel := bus.Subscribe()
	defer cancel()

	// Reader goroutine only watches for client close
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(wsPingInterval)
	defer pings.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				deadline := time.Now().Add(wsWriteTimeout)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete"), deadline)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
