package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/radicugloss/radicugloss/internal/bus"
	"github.com/radicugloss/radicugloss/internal/config"
	"github.com/radicugloss/radicugloss/internal/pkg/logger"
	"github.com/radicugloss/radicugloss/internal/pkg/middleware"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.GRPCPort = 0
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(cfg, "test", logger.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		_ = s.bus.Close()
		_ = s.history.Close()
	})
	return s
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["status"] != "OK" {
		t.Errorf("status = %q, want OK", resp["status"])
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("response should carry a request ID")
	}
}

func TestVersion(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/version", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"version":"test"`) {
		t.Errorf("body = %s, want version test", rec.Body.String())
	}
}

func TestLegacyScoreThroughMiddleware(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()

	body := `{
		"search_results": ["Elad", "Uzi", "Gold", "Namer", "Yoav", "GT"],
		"true_relevance_set": {"Elad": 3, "Yoav": 2, "Gold": 2, "Namer": 2, "Uzi": 1, "GT": 1}
	}`
	req := httptest.NewRequest(http.MethodPost, "/nrdcgl", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		Result float64 `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if diff := resp.Result - 0.7543604253427029; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("result = %v, want 0.7543604253427029", resp.Result)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/score", bytes.NewBufferString(`{"results": ["a"], "judgments": {"a": 1}}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	for _, name := range []string{
		"radicugloss_score_requests_total",
		"radicugloss_http_requests_total",
	} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("metrics output should contain %s", name)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	h := newTestServer(t, cfg).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimit = 1
	cfg.Security.RateBurst = 1
	h := newTestServer(t, cfg).Handler()

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}

	if codes[0] != http.StatusOK {
		t.Errorf("first request status = %d, want %d", codes[0], http.StatusOK)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want %d", codes[2], http.StatusTooManyRequests)
	}
}

func TestEvaluationPublishesEvent(t *testing.T) {
	s := newTestServer(t, testConfig())

	received := make(chan bus.Event, 1)
	err := s.bus.Subscribe(context.Background(), bus.TopicEvaluationCompleted, func(_ context.Context, e bus.Event) error {
		received <- e
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	body := `{"queries": [{"id": "q1", "results": ["a"], "judgments": {"a": 1}}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	select {
	case e := <-received:
		if e.Type != bus.TypeEvaluationCompleted {
			t.Errorf("event type = %q, want %q", e.Type, bus.TypeEvaluationCompleted)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no evaluation event received")
	}
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cfg := testConfig()
	cfg.History.Type = "cassandra"
	if _, err := New(cfg, "test", logger.Discard()); err == nil {
		t.Error("expected error for unknown history type")
	}

	cfg = testConfig()
	cfg.Bus.Type = "nats"
	if _, err := New(cfg, "test", logger.Discard()); err == nil {
		t.Error("expected error for unknown bus type")
	}
}

func TestStartStop(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot reserve a port: %v", err)
	}
	port := lis.Addr().(*net.TCPAddr).Port
	_ = lis.Close()

	cfg := testConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.ShutdownTimeout = 5 * time.Second
	s, err := New(cfg, "test", logger.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	var resp *http.Response
	for range 50 {
		resp, err = http.Get("http://" + cfg.Address() + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("server never became reachable: %v", err)
	}
	_ = resp.Body.Close()
	if !s.Health() {
		t.Error("Health() = false while running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	if s.Health() {
		t.Error("Health() = true after stop")
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	// Test default status
	if w.status != http.StatusOK {
		t.Errorf("initial status = %d, want %d", w.status, http.StatusOK)
	}

	// Test WriteHeader
	w.WriteHeader(http.StatusNotFound)
	if w.status != http.StatusNotFound {
		t.Errorf("status after WriteHeader = %d, want %d", w.status, http.StatusNotFound)
	}
}

func TestWriteJSONUnencodable(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"v": math.Inf(1)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if rec.Body.Len() == 0 {
		t.Error("body should carry an error response")
	}
}
