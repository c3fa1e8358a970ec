package history

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "radicugloss:history:"

// RedisStore keeps each query's points in a sorted set scored by Unix
// milliseconds. Members are JSON-encoded points tagged with a unique ID so
// identical points stay distinct.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to url and verifies the connection.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return newRedisStore(client, ttl), nil
}

func newRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: keyPrefix,
		ttl:    ttl,
	}
}

func (rs *RedisStore) key(queryID string) string {
	return rs.prefix + queryID
}

type redisMember struct {
	ID string `json:"id"`
	Point
}

// Append adds p and trims points older than the ttl in one pipeline.
func (rs *RedisStore) Append(ctx context.Context, p Point) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}

	member, err := json.Marshal(redisMember{ID: uuid.NewString(), Point: p})
	if err != nil {
		return fmt.Errorf("encoding point: %w", err)
	}

	key := rs.key(p.QueryID)
	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(p.Timestamp.UnixMilli()),
		Member: string(member),
	})
	if rs.ttl > 0 {
		minScore := time.Now().Add(-rs.ttl).UnixMilli()
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(minScore, 10))
		pipe.Expire(ctx, key, rs.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving point: %w", err)
	}
	return nil
}

// Since loads the newest limit points at or after since. Redis applies the
// limit, so only those members cross the wire.
func (rs *RedisStore) Since(ctx context.Context, queryID string, since time.Time, limit int) ([]Point, error) {
	rng := &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	members, err := rs.client.ZRevRangeByScore(ctx, rs.key(queryID), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	points := make([]Point, 0, len(members))
	for _, m := range members {
		var rm redisMember
		if err := json.Unmarshal([]byte(m), &rm); err != nil {
			continue // foreign member
		}
		points = append(points, rm.Point)
	}
	slices.Reverse(points)
	return points, nil
}

// Delete removes a query's history.
func (rs *RedisStore) Delete(ctx context.Context, queryID string) error {
	if err := rs.client.Del(ctx, rs.key(queryID)).Err(); err != nil {
		return fmt.Errorf("deleting history: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
