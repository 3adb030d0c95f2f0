package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pagehound/internal/models"
)

// casRetries bounds the optimistic-lock loop on a hot identifier.
const casRetries = 5

// RedisCacheStore keeps freshness records in Redis. Update runs under
// WATCH so the per-identifier read-then-write is atomic: when another
// worker writes the key between our read and our MULTI/EXEC, the
// transaction fails and the decision is re-run against the fresh record.
type RedisCacheStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCacheStore initializes a Redis-backed CacheStore.
func NewRedisCacheStore(addr, prefix string, ttl time.Duration) *RedisCacheStore {
	return &RedisCacheStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Close closes the Redis client.
func (s *RedisCacheStore) Close() error {
	return s.client.Close()
}

func (s *RedisCacheStore) key(identifier string) string {
	return s.prefix + identifier
}

func (s *RedisCacheStore) Get(ctx context.Context, identifier string) (models.CacheRecord, bool, error) {
	val, err := s.client.Get(ctx, s.key(identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CacheRecord{}, false, nil
		}
		return models.CacheRecord{}, false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	var rec models.CacheRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return models.CacheRecord{}, false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return rec, true, nil
}

func (s *RedisCacheStore) Update(ctx context.Context, identifier string, fn UpdateFunc) error {
	key := s.key(identifier)

	txf := func(tx *redis.Tx) error {
		var current *models.CacheRecord
		val, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			// first sighting
		case err != nil:
			return err
		default:
			var rec models.CacheRecord
			if err := json.Unmarshal([]byte(val), &rec); err != nil {
				return err
			}
			current = &rec
		}

		next, write := fn(current)
		if !write {
			return nil
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < casRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return fmt.Errorf("%w: update contention on %s", ErrCacheUnavailable, identifier)
}
