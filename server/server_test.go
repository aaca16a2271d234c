package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aicouncil/council/core"
	"github.com/aicouncil/council/orchestration"
	"github.com/aicouncil/council/providers"
	"github.com/aicouncil/council/registry"
	"github.com/aicouncil/council/resilience"
)

// newTestServer wires a full stack against a mock Ollama endpoint. The
// delay keeps requests in flight long enough for stream tests to
// attach.
func newTestServer(t *testing.T, delay time.Duration) *Server {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			time.Sleep(delay)
			w.Write([]byte(`{"model": "mistral", "response": "pong", "prompt_eval_count": 5, "eval_count": 2}`))
		case "/api/tags":
			w.Write([]byte(`{"models": [{"name": "mistral"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(upstream.Close)

	reg := registry.New()
	if err := reg.Register(&registry.ModelDescriptor{
		ID: "ollama-mistral-7b", Provider: registry.ProviderOllama, ModelName: "mistral",
		Kinds: []registry.TaskKind{
			registry.KindReasoning, registry.KindResearch, registry.KindCodeGeneration,
			registry.KindCreativeOutput, registry.KindFactChecking, registry.KindDebugging,
		},
		AverageLatency: time.Second, Reliability: 0.87, LocalOnly: true,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	t.Setenv("OLLAMA_ENDPOINT", upstream.URL)
	oracle := providers.NewOracle(nil)
	set := providers.NewInvokerSet(oracle, &core.NoOpLogger{})
	set.Register(providers.NewOllamaInvoker(upstream.URL, nil))
	breakers := resilience.NewGroup(resilience.DefaultGroupConfig())
	checker := providers.NewHealthChecker(set, breakers, core.NewMemoryStore(), nil)

	orch := orchestration.NewOrchestrator(
		orchestration.NewRuleAnalyzer(nil),
		orchestration.NewWeightedRouter(reg, checker, 5, nil),
		orchestration.NewPooledExecutor(set, breakers, reg, nil),
		orchestration.NewConfidenceArbiter(reg, nil),
		orchestration.NewOrderedSynthesizer(nil),
		nil,
		nil,
		nil,
	)
	return New(orch, checker, 0, nil)
}

func postRequest(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/requests", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /requests: %v", err)
	}
	return resp
}

func TestSubmitAccepted(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, 0).Handler())
	defer ts.Close()

	resp := postRequest(t, ts, `{"content": "explain recursion", "mode": "fast"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var body struct {
		RequestID       string `json:"request_id"`
		Mode            string `json:"mode"`
		ProgressChannel string `json:"progress_channel"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RequestID == "" {
		t.Error("no request_id assigned")
	}
	if body.Mode != "fast" {
		t.Errorf("mode = %q", body.Mode)
	}
	if !strings.Contains(body.ProgressChannel, body.RequestID) {
		t.Errorf("progress_channel = %q should embed the request id", body.ProgressChannel)
	}
}

func TestSubmitValidation(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, 0).Handler())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"missing content", `{"mode": "fast"}`},
		{"bad mode", `{"content": "hi", "mode": "turbo"}`},
		{"invalid json", `{`},
		{"content too long", `{"content": "` + strings.Repeat("a", maxContentLength+1) + `", "mode": "fast"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postRequest(t, ts, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestSubmitDefaultsToBalanced(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, 0).Handler())
	defer ts.Close()

	resp := postRequest(t, ts, `{"content": "explain maps"}`)
	defer resp.Body.Close()

	var body struct {
		Mode string `json:"mode"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Mode != "balanced" {
		t.Errorf("mode = %q, want balanced", body.Mode)
	}
}

func TestSSEStreamEndsWithTerminalEvent(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, 200*time.Millisecond).Handler())
	defer ts.Close()

	resp := postRequest(t, ts, `{"content": "explain recursion", "mode": "fast"}`)
	var accepted struct {
		ProgressChannel string `json:"progress_channel"`
	}
	json.NewDecoder(resp.Body).Decode(&accepted)
	resp.Body.Close()

	stream, err := http.Get(ts.URL + accepted.ProgressChannel)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer stream.Body.Close()
	if stream.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", stream.StatusCode)
	}
	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content-type = %q", ct)
	}

	var eventTypes []string
	scanner := bufio.NewScanner(stream.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventTypes = append(eventTypes, strings.TrimPrefix(line, "event: "))
		}
	}
	if len(eventTypes) == 0 {
		t.Fatal("no events received")
	}
	last := eventTypes[len(eventTypes)-1]
	if last != "final_response" && last != "error" {
		t.Errorf("last event = %s, want terminal", last)
	}
}

func TestSSEUnknownRequest(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, 0).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/requests/nope/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestWebSocketStream(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, 300*time.Millisecond).Handler())
	defer ts.Close()

	resp := postRequest(t, ts, `{"content": "explain recursion", "mode": "fast"}`)
	var accepted struct {
		RequestID string `json:"request_id"`
	}
	json.NewDecoder(resp.Body).Decode(&accepted)
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/requests/" + accepted.RequestID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var sawTerminal bool
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var ev struct {
			Type      string `json:"type"`
			RequestID string `json:"request_id"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		if ev.RequestID != accepted.RequestID {
			t.Errorf("event request_id = %s", ev.RequestID)
		}
		if ev.Type == "final_response" || ev.Type == "error" {
			sawTerminal = true
		}
	}
	if !sawTerminal {
		t.Error("stream ended without a terminal event")
	}
}

func TestProviderHealthEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, 0).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/providers/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Providers []struct {
			Provider string `json:"provider"`
			Status   string `json:"status"`
		} `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var ollama *struct {
		Provider string `json:"provider"`
		Status   string `json:"status"`
	}
	for i := range body.Providers {
		if body.Providers[i].Provider == "ollama" {
			ollama = &body.Providers[i]
		}
	}
	if ollama == nil {
		t.Fatal("ollama missing from health report")
	}
	if ollama.Status != "healthy" {
		t.Errorf("ollama status = %s, want healthy", ollama.Status)
	}
}

func TestHealthz(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, 0).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
