package history

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps points in process, bounded per query.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[string][]Point
	limit  int
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryStore keeps at most limit points per query (0 = unbounded) and
// drops points older than ttl (0 = forever).
func NewMemoryStore(limit int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		points: make(map[string][]Point),
		limit:  limit,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Append records p, keeping the query's points time-ordered.
func (s *MemoryStore) Append(ctx context.Context, p Point) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pts := append(s.points[p.QueryID], p)
	if n := len(pts); n > 1 && pts[n-1].Timestamp.Before(pts[n-2].Timestamp) {
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Timestamp.Before(pts[j].Timestamp) })
	}
	n := len(pts)
	pts = tail(s.expire(pts), s.limit)
	if len(pts) < n {
		// a trimmed re-slice would pin every dropped point
		pts = slices.Clone(pts)
	}
	s.points[p.QueryID] = pts
	return nil
}

// expire drops points older than the ttl. pts must be sorted.
func (s *MemoryStore) expire(pts []Point) []Point {
	if s.ttl <= 0 {
		return pts
	}
	cutoff := s.now().Add(-s.ttl)
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].Timestamp.Before(cutoff) })
	return pts[i:]
}

// Since returns the query's points at or after since, newest limit of them.
func (s *MemoryStore) Since(ctx context.Context, queryID string, since time.Time, limit int) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pts := s.expire(s.points[queryID])
	out := make([]Point, 0, len(pts))
	for _, p := range pts {
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return tail(out, limit), nil
}

// Delete drops every point of a query.
func (s *MemoryStore) Delete(ctx context.Context, queryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.points, queryID)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
