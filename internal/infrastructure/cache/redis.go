package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/supesu/trading-core/pkg/config"
)

const redisKeyPrefix = "trading-core:"

// RedisStore is the optional shared cache tier. It is treated strictly as a
// cache: it may lag and it may be unavailable, and neither condition affects
// the in-process tier.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies connectivity
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &RedisStore{rdb: rdb}, nil
}

// Get retrieves and decodes an entry. It returns (nil, false, nil) on a
// plain miss and an error only for transport or decode failures.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	data, err := s.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis: get %s: %w", key, err)
	}

	var stored storedEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, false, fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}

	value, err := decodeValue(stored.Kind, stored.Data)
	if err != nil {
		return nil, false, fmt.Errorf("redis: decode %s: %w", key, err)
	}

	return &Entry{
		Key:         key,
		Value:       value,
		LastUpdated: stored.LastUpdated,
		LastTraded:  stored.LastTraded,
		Metadata:    stored.Metadata,
		TTL:         time.Duration(stored.TTLSeconds) * time.Second,
	}, true, nil
}

// Set serializes and stores an entry with its TTL as the Redis expiry.
// Values without a known serialization kind are skipped silently; they stay
// in the in-process tier only.
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	kind, ok := kindOf(entry.Value)
	if !ok {
		return nil
	}

	data, err := json.Marshal(entry.Value)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", entry.Key, err)
	}

	payload, err := json.Marshal(storedEntry{
		Kind:        kind,
		Data:        data,
		LastUpdated: entry.LastUpdated,
		LastTraded:  entry.LastTraded,
		Metadata:    entry.Metadata,
		TTLSeconds:  int64(entry.TTL / time.Second),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal envelope %s: %w", entry.Key, err)
	}

	if err := s.rdb.Set(ctx, redisKeyPrefix+entry.Key, payload, entry.TTL).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", entry.Key, err)
	}
	return nil
}

// Delete removes an entry from the shared tier
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis: del %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the underlying connection pool
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
