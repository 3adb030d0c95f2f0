package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatusStore stores job status in Redis.
type RedisStatusStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStatusStore initializes a Redis-backed StatusStore.
func NewRedisStatusStore(addr, prefix string, ttl time.Duration) *RedisStatusStore {
	return &RedisStatusStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Close closes the Redis client.
func (s *RedisStatusStore) Close() error {
	return s.client.Close()
}

// SetStatus writes the status record to Redis.
func (s *RedisStatusStore) SetStatus(ctx context.Context, status JobStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	key := s.prefix + status.Identifier
	return s.client.Set(ctx, key, payload, s.ttl).Err()
}

// GetStatus reads the status record from Redis.
func (s *RedisStatusStore) GetStatus(ctx context.Context, identifier string) (JobStatus, bool, error) {
	key := s.prefix + identifier
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return JobStatus{}, false, nil
		}
		return JobStatus{}, false, err
	}

	var status JobStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return JobStatus{}, false, err
	}

	return status, true, nil
}
