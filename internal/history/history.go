// Package history keeps a time series of scores per query so a query's
// ranking quality can be tracked across evaluation runs.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/radicugloss/radicugloss/internal/config"
)

// Point is one scored evaluation of a query.
type Point struct {
	QueryID   string    `json:"query_id"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	NRDCGL    float64   `json:"nrdcgl"`
	PNRDCGL   float64   `json:"pnrdcgl"`
	RDCGL     float64   `json:"rdcgl"`
}

// Store persists points. Since returns points in ascending time order.
type Store interface {
	Append(ctx context.Context, p Point) error
	Since(ctx context.Context, queryID string, since time.Time, limit int) ([]Point, error)
	Delete(ctx context.Context, queryID string) error
	Close() error
}

// New builds the store named by cfg.Type.
func New(cfg config.HistoryConfig) (Store, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(cfg.Limit, cfg.TTL), nil
	case "redis":
		return NewRedisStore(cfg.RedisURL, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown history type: %s", cfg.Type)
	}
}

// tail keeps the newest limit points when limit is positive.
func tail(points []Point, limit int) []Point {
	if limit > 0 && len(points) > limit {
		return points[len(points)-limit:]
	}
	return points
}
