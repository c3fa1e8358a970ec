package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPMiddleware wraps an HTTP handler to collect metrics.
// It records request count and duration, and tracks in-flight requests.
//
// Usage:
//
//	handler := metrics.HTTPMiddleware(m, mux)
func HTTPMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		m.RecordHTTP(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and calls the underlying WriteHeader.
func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write ensures status code is set before writing.
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(w.statusCode)
	}
	return w.ResponseWriter.Write(b)
}

// knownPaths are served as-is; everything else collapses to keep label
// cardinality bounded.
var knownPaths = map[string]bool{
	"/":            true,
	"/health":      true,
	"/nrdcgl":      true,
	"/metrics":     true,
	"/v1/score":     true,
	"/v1/evaluate":  true,
	"/v1/judgments": true,
	"/v1/version":   true,
}

// normalizePath maps request paths onto route patterns.
//
// Examples:
//   - /v1/history/q-42 -> /v1/history/{query_id}
//   - /favicon.ico -> other
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	for _, prefix := range []string{"/v1/history/", "/v1/judgments/"} {
		if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" {
			return prefix + "{query_id}"
		}
	}
	return "other"
}

// statusCode converts HTTP status code to string for metric label.
// Groups uncommon codes into classes to reduce cardinality.
func statusCode(code int) string {
	switch code {
	case 200, 201, 204, 400, 401, 403, 404, 405, 429, 500, 502, 503, 504:
		return strconv.Itoa(code)
	}

	if code >= 100 && code < 600 {
		return fmt.Sprintf("%dxx", code/100)
	}

	return strconv.Itoa(code)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker if the underlying ResponseWriter supports it.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
}
