package client

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/radicugloss/radicugloss/internal/evaluation"
	"github.com/radicugloss/radicugloss/internal/history"
	"github.com/radicugloss/radicugloss/pkg/radicugloss"
)

var (
	regressionResults = []string{"Elad", "Uzi", "Gold", "Namer", "Yoav", "GT"}
	regressionSet     = radicugloss.RelevanceSet{"Elad": 3, "Yoav": 2, "Gold": 2, "Namer": 2, "Uzi": 1, "GT": 1}
)

const regressionNRDCGL = 0.7543604253427029

// newAPIServer serves the real evaluation routes.
func newAPIServer(t *testing.T, opts ...evaluation.Option) (*httptest.Server, *evaluation.Evaluator) {
	t.Helper()
	e := evaluation.NewEvaluator(radicugloss.DefaultOptions(), opts...)
	mux := http.NewServeMux()
	evaluation.NewHandler(e, nil).RegisterRoutes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "OK"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, e
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != "http://localhost:5678" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:5678")
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, 30*time.Second)
	}
}

func TestClientNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		c := New(Config{})
		if c.baseURL != "http://localhost:5678" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://localhost:5678")
		}
	})

	t.Run("custom config", func(t *testing.T) {
		c := New(Config{
			BaseURL: "http://custom:9000",
			Timeout: 60 * time.Second,
		})
		if c.baseURL != "http://custom:9000" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://custom:9000")
		}
		if c.httpClient.Timeout != 60*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 60*time.Second)
		}
	})
}

func TestClientHealth(t *testing.T) {
	server, _ := newAPIServer(t)

	resp, err := New(Config{BaseURL: server.URL}).Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != "OK" {
		t.Errorf("Status = %q, want %q", resp.Status, "OK")
	}
}

func TestClientVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/version" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/v1/version")
		}
		_, _ = w.Write([]byte(`{"version":"1.2.3"}`))
	}))
	defer server.Close()

	v, err := New(Config{BaseURL: server.URL}).Version(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "1.2.3" {
		t.Errorf("Version = %q, want %q", v, "1.2.3")
	}
}

func TestClientScore(t *testing.T) {
	server, _ := newAPIServer(t)
	c := New(Config{BaseURL: server.URL})

	res, err := c.Score(context.Background(), evaluation.ScoreRequest{
		Results:   regressionResults,
		Judgments: regressionSet,
		Explain:   true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(res.NRDCGL-regressionNRDCGL) > 1e-9 {
		t.Errorf("NRDCGL = %v, want %v", res.NRDCGL, regressionNRDCGL)
	}
	if res.Breakdown == nil || len(res.Breakdown.Entries) != len(regressionResults) {
		t.Errorf("Breakdown = %+v, want %d entries", res.Breakdown, len(regressionResults))
	}
}

func TestClientNRDCGL(t *testing.T) {
	server, _ := newAPIServer(t)

	got, err := New(Config{BaseURL: server.URL}).NRDCGL(context.Background(), regressionResults, regressionSet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-regressionNRDCGL) > 1e-9 {
		t.Errorf("NRDCGL = %v, want %v", got, regressionNRDCGL)
	}
}

func TestClientEvaluate(t *testing.T) {
	server, _ := newAPIServer(t)

	run, err := New(Config{BaseURL: server.URL}).Evaluate(context.Background(), evaluation.Request{
		Queries: []evaluation.Query{
			{ID: "q1", Results: regressionResults, Judgments: regressionSet},
			{ID: "q2", Results: []string{"a"}, Judgments: radicugloss.RelevanceSet{"a": 1}},
		},
		Ks: []int{1, 3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(run.Results) != 2 {
		t.Fatalf("Results = %d, want 2", len(run.Results))
	}
	if run.Summary.QueryCount != 2 {
		t.Errorf("QueryCount = %d, want 2", run.Summary.QueryCount)
	}
	if _, ok := run.Results[0].NDCG[3]; !ok {
		t.Errorf("NDCG = %v, want a value at 3", run.Results[0].NDCG)
	}
}

func TestClientJudgments(t *testing.T) {
	server, _ := newAPIServer(t)
	c := New(Config{BaseURL: server.URL})
	ctx := context.Background()

	n, err := c.LoadJudgments(ctx, []evaluation.RelevanceJudgment{
		{QueryID: "q 1", DocID: "a", Relevance: 1},
		{QueryID: "q 1", DocID: "b", Relevance: 2},
	})
	if err != nil {
		t.Fatalf("LoadJudgments() error = %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	set, err := c.Judgments(ctx, "q 1")
	if err != nil {
		t.Fatalf("Judgments() error = %v", err)
	}
	if set["a"] != 1 || set["b"] != 2 {
		t.Errorf("Judgments = %v", set)
	}
}

func TestClientHistory(t *testing.T) {
	server, _ := newAPIServer(t, evaluation.WithHistory(history.NewMemoryStore(10, 0)))
	c := New(Config{BaseURL: server.URL})
	ctx := context.Background()

	for range 3 {
		if _, err := c.Score(ctx, evaluation.ScoreRequest{
			QueryID:   "q1",
			Results:   []string{"a"},
			Judgments: radicugloss.RelevanceSet{"a": 1},
		}); err != nil {
			t.Fatalf("Score() error = %v", err)
		}
	}

	resp, err := c.History(ctx, "q1", time.Time{}, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if resp.QueryID != "q1" {
		t.Errorf("QueryID = %q, want q1", resp.QueryID)
	}
	if len(resp.Points) != 2 {
		t.Errorf("Points = %d, want 2", len(resp.Points))
	}
}

func TestClientDeleteHistory(t *testing.T) {
	store := history.NewMemoryStore(10, 0)
	server, _ := newAPIServer(t, evaluation.WithHistory(store))
	c := New(Config{BaseURL: server.URL})
	ctx := context.Background()

	if err := store.Append(ctx, history.Point{QueryID: "q 1", NRDCGL: 0.5}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := c.DeleteHistory(ctx, "q 1"); err != nil {
		t.Fatalf("DeleteHistory() error = %v", err)
	}

	resp, err := c.History(ctx, "q 1", time.Time{}, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(resp.Points) != 0 {
		t.Errorf("Points = %+v, want none", resp.Points)
	}
}

func TestClientAPIError(t *testing.T) {
	server, _ := newAPIServer(t)

	_, err := New(Config{BaseURL: server.URL}).Judgments(context.Background(), "unknown")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != "NOT_FOUND" {
		t.Errorf("Code = %q, want %q", apiErr.Code, "NOT_FOUND")
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusNotFound)
	}
}

func TestClientValidationError(t *testing.T) {
	server, _ := newAPIServer(t)

	_, err := New(Config{BaseURL: server.URL}).Score(context.Background(), evaluation.ScoreRequest{
		Results:   []string{"a"},
		Judgments: radicugloss.RelevanceSet{"a": -1},
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusBadRequest)
	}
}

func TestClientNonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(Config{BaseURL: server.URL}).Health(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("plain text body should not decode as *APIError: %v", apiErr)
	}
}

func TestClientConnectionError(t *testing.T) {
	c := New(Config{
		BaseURL: "http://localhost:99999", // Invalid port
		Timeout: 1 * time.Second,
	})

	_, err := c.Health(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestAPIErrorString(t *testing.T) {
	err := &APIError{
		Code:    "TEST_ERROR",
		Message: "test message",
	}

	expected := "TEST_ERROR: test message"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}
