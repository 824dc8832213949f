package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisSnapshotStore keeps feed snapshots in one hash per feed, so that
// several builders can share the last-good cache.
type RedisSnapshotStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshotStore stores snapshots under "<prefix><feedID>". A zero
// ttl keeps them forever.
func NewRedisSnapshotStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisSnapshotStore {
	if prefix == "" {
		prefix = "feed:snapshot:"
	}
	return &RedisSnapshotStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, feedID string, payload []byte) error {
	key := s.prefix + feedID
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "payload", payload, "saved_at", time.Now().UnixMilli())
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("snapshot: redis save %s: %w", feedID, err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, feedID string) (Snapshot, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+feedID).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(vals) == 0) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: redis load %s: %w", feedID, err)
	}
	payload, ok := vals["payload"]
	if !ok {
		return Snapshot{}, ErrNoSnapshot
	}
	snap := Snapshot{FeedID: feedID, Payload: []byte(payload)}
	if ms, err := strconv.ParseInt(vals["saved_at"], 10, 64); err == nil {
		snap.SavedAt = time.UnixMilli(ms)
	}
	return snap, nil
}
