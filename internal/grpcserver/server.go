// Package grpcserver serves the scoring service over gRPC.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/radicugloss/radicugloss/internal/evaluation"
	apperrors "github.com/radicugloss/radicugloss/internal/pkg/errors"
	"github.com/radicugloss/radicugloss/internal/pkg/logger"
)

// Config holds the gRPC server configuration.
type Config struct {
	// TCPAddr is the TCP address to listen on (e.g., ":5679").
	TCPAddr string

	// MaxRecvMsgSize is the maximum message size in bytes (default: 16MB).
	MaxRecvMsgSize int

	// MaxSendMsgSize is the maximum message size in bytes (default: 16MB).
	MaxSendMsgSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TCPAddr:        ":5679",
		MaxRecvMsgSize: 16 * 1024 * 1024, // 16MB
		MaxSendMsgSize: 16 * 1024 * 1024, // 16MB
	}
}

// Server is the gRPC server that implements radicugloss.v1.Scorer.
type Server struct {
	cfg        Config
	log        *logger.Logger
	evaluator  *evaluation.Evaluator
	grpcServer *grpc.Server
	health     *health.Server
}

// New creates a new gRPC server. The scorer and health services are registered
// immediately so the server can be driven with Serve on any listener.
func New(cfg Config, log *logger.Logger, evaluator *evaluation.Evaluator) *Server {
	def := DefaultConfig()
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = def.TCPAddr
	}
	if cfg.MaxRecvMsgSize == 0 {
		cfg.MaxRecvMsgSize = def.MaxRecvMsgSize
	}
	if cfg.MaxSendMsgSize == 0 {
		cfg.MaxSendMsgSize = def.MaxSendMsgSize
	}
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		cfg:       cfg,
		log:       log,
		evaluator: evaluator,
		health:    health.NewServer(),
	}

	s.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  10 * time.Second,
			Timeout:               3 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(s.loggingInterceptor),
	)
	RegisterScorerServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return s
}

// ListenAndServe listens on the configured address and blocks until Stop.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on TCP %s: %w", s.cfg.TCPAddr, err)
	}
	s.log.Info("gRPC server listening on TCP", "addr", lis.Addr().String())
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks the services as not serving and stops gracefully.
func (s *Server) Stop() {
	s.log.Info("Stopping gRPC server...")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Score scores one result list.
func (s *Server) Score(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req evaluation.ScoreRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Judgments == nil {
		return nil, status.Error(codes.InvalidArgument, "judgments is required")
	}

	res, err := s.evaluator.Score(ctx, "grpc", req)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(res)
}

// Evaluate runs a batch evaluation.
func (s *Server) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req evaluation.Request
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	run, err := s.evaluator.Evaluate(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(run)
}

func encode(v any) (*structpb.Struct, error) {
	out, err := ToStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// toStatus maps application errors to gRPC status codes. Internal details
// are not sent to the client.
func toStatus(err error) error {
	appErr := apperrors.FromScoreError(err)
	code := appErr.GRPCCode()
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, appErr.Message)
}

func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	log := s.log.With("method", info.FullMethod, "duration", time.Since(start))
	if err != nil {
		log.Warn("gRPC request failed", "code", status.Code(err).String(), "error", err)
	} else {
		log.Debug("gRPC request")
	}
	return resp, err
}
