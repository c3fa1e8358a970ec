// Package middleware provides HTTP middleware components for the scoring server.
//
// Available middleware:
//   - RateLimiter: Per-client rate limiting using token bucket algorithm
//   - CORS: Origin allow-listing with preflight handling
//   - RequestID: Request ID propagation into the request context
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Stop()
//	handler = middleware.RequestID(middleware.CORS(origins)(rl.Middleware(handler)))
package middleware
