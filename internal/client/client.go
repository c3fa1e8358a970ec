// Package client provides an HTTP client for the radicugloss API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/radicugloss/radicugloss/internal/evaluation"
	"github.com/radicugloss/radicugloss/internal/history"
	"github.com/radicugloss/radicugloss/internal/pkg/middleware"
	"github.com/radicugloss/radicugloss/pkg/radicugloss"
)

// Client is an HTTP client for the radicugloss API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the API server.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle (keep-alive) connections
	// across all hosts. Zero means no limit.
	MaxIdleConns int

	// MaxConnsPerHost limits the total number of connections per host.
	// Zero means no limit.
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum amount of time an idle (keep-alive)
	// connection will remain idle before closing itself.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:5678",
		Timeout:         30 * time.Second,
		MaxIdleConns:    100,
		MaxConnsPerHost: 100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost / 5, // 20% per host
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// HistoryResponse is the body of GET /v1/history/{query_id}.
type HistoryResponse struct {
	QueryID string          `json:"query_id"`
	Points  []history.Point `json:"points"`
}

// APIError represents an API error response.
type APIError struct {
	StatusCode int               `json:"-"`
	RequestID  string            `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Health checks if the API is healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.get(ctx, "/v1/version", &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// Score scores one result list.
func (c *Client) Score(ctx context.Context, req evaluation.ScoreRequest) (*evaluation.ScoreResult, error) {
	var res evaluation.ScoreResult
	if err := c.post(ctx, "/v1/score", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// NRDCGL calls the legacy endpoint and returns its bare result.
func (c *Client) NRDCGL(ctx context.Context, results []string, set radicugloss.RelevanceSet) (float64, error) {
	req := map[string]any{
		"search_results":     results,
		"true_relevance_set": set,
	}
	var resp evaluation.LegacyResponse
	if err := c.post(ctx, "/nrdcgl", req, &resp); err != nil {
		return 0, err
	}
	return resp.Result, nil
}

// Evaluate runs a batch evaluation.
func (c *Client) Evaluate(ctx context.Context, req evaluation.Request) (*evaluation.Run, error) {
	var run evaluation.Run
	if err := c.post(ctx, "/v1/evaluate", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// LoadJudgments uploads judgments and returns how many were accepted.
func (c *Client) LoadJudgments(ctx context.Context, judgments []evaluation.RelevanceJudgment) (int, error) {
	req := map[string]any{"judgments": judgments}
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.post(ctx, "/v1/judgments", req, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Judgments returns the loaded relevance set of a query.
func (c *Client) Judgments(ctx context.Context, queryID string) (radicugloss.RelevanceSet, error) {
	var resp struct {
		Judgments radicugloss.RelevanceSet `json:"judgments"`
	}
	if err := c.get(ctx, "/v1/judgments/"+url.PathEscape(queryID), &resp); err != nil {
		return nil, err
	}
	return resp.Judgments, nil
}

// History returns the recorded scores of a query. A zero since and limit
// return everything.
func (c *Client) History(ctx context.Context, queryID string, since time.Time, limit int) (*HistoryResponse, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.Format(time.RFC3339))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/history/" + url.PathEscape(queryID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp HistoryResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteHistory drops the recorded scores of a query.
func (c *Client) DeleteHistory(ctx context.Context, queryID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/history/"+url.PathEscape(queryID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, nil)
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// do executes a request.
func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := APIError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get(middleware.RequestIDHeader),
		}
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}
		return &apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
