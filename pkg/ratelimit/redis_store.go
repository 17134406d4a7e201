package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps the attempt log in a Redis sorted set per key, scored by
// attempt time in unix milliseconds. Limits hold across all processes
// sharing the Redis instance.
type RedisStore struct {
	client *redis.Client
	prefix string
	// retention bounds how long an idle key survives; it must cover
	// window + block so an active block is never expired away
	retention time.Duration
}

// NewRedisStore creates a Redis-backed attempt store
func NewRedisStore(client *redis.Client, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if retention <= 0 {
		retention = 25 * time.Hour
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + ":" + key
}

// Count returns the number of attempts at or after since
func (s *RedisStore) Count(ctx context.Context, key string, since time.Time) (int, error) {
	min := strconv.FormatInt(since.UnixMilli(), 10)
	n, err := s.client.ZCount(ctx, s.redisKey(key), min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount: %w", err)
	}
	return int(n), nil
}

// Latest returns the most recent attempt time, or the zero time if none
func (s *RedisStore) Latest(ctx context.Context, key string) (time.Time, error) {
	entries, err := s.client.ZRevRangeWithScores(ctx, s.redisKey(key), 0, 0).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("redis zrevrange: %w", err)
	}
	if len(entries) == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(int64(entries[0].Score)), nil
}

// Record appends an attempt at the given time
func (s *RedisStore) Record(ctx context.Context, key string, at time.Time) error {
	redisKey := s.redisKey(key)
	ms := at.UnixMilli()

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, redisKey, &redis.Z{
		Score:  float64(ms),
		Member: strconv.FormatInt(ms, 10) + "-" + strconv.FormatInt(at.UnixNano(), 10),
	})
	pipe.Expire(ctx, redisKey, s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record: %w", err)
	}
	return nil
}

// PruneBefore deletes attempts strictly before cutoff
func (s *RedisStore) PruneBefore(ctx context.Context, key string, cutoff time.Time) error {
	max := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.redisKey(key), "-inf", max).Err(); err != nil {
		return fmt.Errorf("redis prune: %w", err)
	}
	return nil
}
