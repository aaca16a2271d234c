// Package server exposes the council pipeline over HTTP: request
// submission, progress streaming over SSE and WebSocket, and provider
// health.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/orchestration"
	"github.com/aicouncil/council/providers"
	"github.com/aicouncil/council/registry"
)

// Server hosts the council HTTP API.
type Server struct {
	orchestrator *orchestration.Orchestrator
	health       *providers.HealthChecker
	logger       core.Logger
	httpServer   *http.Server
	port         int
}

// New creates a server on the given port
func New(orch *orchestration.Orchestrator, health *providers.HealthChecker, port int, logger core.Logger) *Server {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	s := &Server{
		orchestrator: orch,
		health:       health,
		logger:       logger,
		port:         port,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /requests", s.handleSubmit)
	mux.HandleFunc("GET /requests/{id}/events", s.handleSSE)
	mux.HandleFunc("GET /requests/{id}/ws", s.handleWebSocket)
	mux.HandleFunc("GET /providers/health", s.handleProviderHealth)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           otelhttp.NewHandler(mux, "council-http"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", map[string]interface{}{
		"operation": "server_start",
		"port":      s.port,
	})
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server stopping", map[string]interface{}{
		"operation": "server_stop",
	})
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured handler for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// maxContentLength bounds accepted request content
const maxContentLength = 5000

type submitRequest struct {
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

type submitResponse struct {
	RequestID       string `json:"request_id"`
	Mode            string `json:"mode"`
	ProgressChannel string `json:"progress_channel"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Content == "" {
		s.writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(body.Content) > maxContentLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("content exceeds %d characters", maxContentLength))
		return
	}

	mode := orchestration.ExecutionMode(body.Mode)
	if body.Mode == "" {
		mode = orchestration.ModeBalanced
	}
	if !mode.Valid() {
		s.writeError(w, http.StatusBadRequest, "mode must be fast, balanced or best_quality")
		return
	}

	req := s.orchestrator.Submit(body.Content, mode)
	s.logger.Info("Request accepted", map[string]interface{}{
		"operation":  "submit",
		"request_id": req.ID,
		"mode":       string(mode),
	})

	s.writeJSON(w, http.StatusAccepted, submitResponse{
		RequestID:       req.ID,
		Mode:            string(mode),
		ProgressChannel: "/requests/" + req.ID + "/events",
	})
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"
	results := s.health.CheckAll(r.Context(), force)

	type entry struct {
		Provider     string `json:"provider"`
		Status       string `json:"status"`
		LastCheck    string `json:"last_check,omitempty"`
		ResponseTime string `json:"response_time,omitempty"`
		Error        string `json:"error,omitempty"`
	}
	out := make([]entry, 0, len(results))
	for _, p := range registry.AllProviders {
		status, ok := results[p]
		if !ok {
			continue
		}
		e := entry{
			Provider: string(p),
			Status:   string(status.Status),
			Error:    status.Error,
		}
		if !status.LastCheck.IsZero() {
			e.LastCheck = status.LastCheck.Format(time.RFC3339)
		}
		if status.ResponseTime > 0 {
			e.ResponseTime = status.ResponseTime.String()
		}
		out = append(out, e)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"providers": out})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encoding failed", map[string]interface{}{
			"operation": "write_json",
			"error":     err.Error(),
		})
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
