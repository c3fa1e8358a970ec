// Package grpcclient provides a gRPC client for a running radicugloss server.
package grpcclient

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/radicugloss/radicugloss/internal/evaluation"
	"github.com/radicugloss/radicugloss/internal/grpcserver"
)

// Config holds the client configuration.
type Config struct {
	// ServerAddress is the server address, e.g. "localhost:5679".
	ServerAddress string

	// Timeout bounds each call.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServerAddress: "localhost:5679",
		Timeout:       10 * time.Second,
	}
}

// Client is a gRPC client for the scorer.
type Client struct {
	cfg    Config
	conn   *grpc.ClientConn
	scorer grpcserver.ScorerClient
	health healthpb.HealthClient
}

// New creates a client. The connection is established lazily on the first call.
func New(cfg Config, extra ...grpc.DialOption) (*Client, error) {
	def := DefaultConfig()
	if cfg.ServerAddress == "" {
		cfg.ServerAddress = def.ServerAddress
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(16*1024*1024), // 16MB
			grpc.MaxCallSendMsgSize(16*1024*1024), // 16MB
		),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.ServerAddress, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.ServerAddress, err)
	}

	return &Client{
		cfg:    cfg,
		conn:   conn,
		scorer: grpcserver.NewScorerClient(conn),
		health: healthpb.NewHealthClient(conn),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Score scores one result list remotely.
func (c *Client) Score(ctx context.Context, req evaluation.ScoreRequest) (*evaluation.ScoreResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	in, err := grpcserver.ToStruct(req)
	if err != nil {
		return nil, err
	}
	out, err := c.scorer.Score(ctx, in)
	if err != nil {
		return nil, err
	}

	var res evaluation.ScoreResult
	if err := grpcserver.FromStruct(out, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Evaluate runs a batch evaluation remotely.
func (c *Client) Evaluate(ctx context.Context, req evaluation.Request) (*evaluation.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	in, err := grpcserver.ToStruct(req)
	if err != nil {
		return nil, err
	}
	out, err := c.scorer.Evaluate(ctx, in)
	if err != nil {
		return nil, err
	}

	var run evaluation.Run
	if err := grpcserver.FromStruct(out, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Health reports whether the scorer service is serving.
func (c *Client) Health(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
