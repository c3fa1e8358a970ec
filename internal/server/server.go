// Package server provides the HTTP server that wires all services together.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/radicugloss/radicugloss/internal/bus"
	"github.com/radicugloss/radicugloss/internal/config"
	"github.com/radicugloss/radicugloss/internal/evaluation"
	"github.com/radicugloss/radicugloss/internal/grpcserver"
	"github.com/radicugloss/radicugloss/internal/history"
	"github.com/radicugloss/radicugloss/internal/metrics"
	"github.com/radicugloss/radicugloss/internal/pkg/logger"
	"github.com/radicugloss/radicugloss/internal/pkg/middleware"
)

// Server is the main server that wires all services together.
type Server struct {
	cfg        *config.Config
	version    string
	log        *logger.Logger
	httpServer *http.Server
	grpc       *grpcserver.Server

	// Services
	metrics   *metrics.Metrics
	bus       bus.Bus
	history   history.Store
	evaluator *evaluation.Evaluator
	limiter   *middleware.RateLimiter

	// Handlers
	evalHandler *evaluation.Handler

	mu      sync.RWMutex
	started bool
}

// New creates a new server with all dependencies.
func New(cfg *config.Config, version string, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		cfg:     cfg,
		version: version,
		log:     log,
		metrics: metrics.New(),
	}

	hist, err := history.New(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("failed to create history store: %w", err)
	}
	s.history = hist

	b, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		_ = hist.Close()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	s.bus = bus.NewInstrumentedBus(b, s.metrics)

	s.evaluator = evaluation.NewEvaluator(cfg.Scoring.Options(),
		evaluation.WithLogger(log),
		evaluation.WithRecorder(s.metrics),
		evaluation.WithHistory(s.history),
		evaluation.WithPublisher(s.bus, cfg.Bus.Topic),
		evaluation.WithConcurrency(cfg.Scoring.BatchConcurrency),
		evaluation.WithMaxBatchSize(cfg.Scoring.MaxBatchSize),
	)
	s.evalHandler = evaluation.NewHandler(s.evaluator, log)

	if cfg.Security.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(cfg.Security.RateLimit),
			Burst:             cfg.Security.RateBurst,
			CleanupInterval:   time.Minute,
		})
	}

	if addr := cfg.GRPCAddress(); addr != "" {
		s.grpc = grpcserver.New(grpcserver.Config{TCPAddr: addr}, log, s.evaluator)
	}

	return s, nil
}

// Evaluator returns the evaluator serving requests.
func (s *Server) Evaluator() *evaluation.Evaluator {
	return s.evaluator
}

// Handler returns the HTTP handler with all routes and middleware applied.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves HTTP, and gRPC when configured, until ctx is canceled or a
// listener fails. It then shuts everything down.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	addr := s.cfg.Address()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("Starting HTTP server", "addr", addr, "version", s.version)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if s.grpc != nil {
		g.Go(func() error {
			if err := s.grpc.ListenAndServe(); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Stop(stopCtx)
	})

	return g.Wait()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("HTTP shutdown error", "error", err)
			errs = append(errs, err)
		}
	}
	if s.grpc != nil {
		s.grpc.Stop()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	// Close services
	if err := s.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	if err := s.history.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close history: %w", err))
	}

	s.started = false
	s.log.Info("Server stopped")

	return errors.Join(errs...)
}

// Health returns the server health status.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	if s.cfg.Metrics.Enabled {
		mux.Handle("GET "+s.cfg.Metrics.Path, s.metrics.Handler())
	}

	s.evalHandler.RegisterRoutes(mux)

	// Innermost first.
	var handler http.Handler = mux
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = middleware.CORS(s.cfg.CORSOriginList())(handler)
	handler = metrics.HTTPMiddleware(s.metrics, handler)
	handler = wrapWithLogging(handler, s.log)
	return middleware.RequestID(handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// wrapWithLogging logs every request at debug level.
func wrapWithLogging(handler http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create response writer wrapper to capture status
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		handler.ServeHTTP(wrapped, r)

		log.WithContext(r.Context()).Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
