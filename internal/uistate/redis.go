// Package uistate keeps folder expansion flags in Redis so that several
// tree views can share them without touching the item database.
package uistate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starford/arbor/internal/tree"
)

// DefaultPrefix namespaces the keys written by RedisStore.
const DefaultPrefix = "arbor:"

var _ tree.ExpansionStore = (*RedisStore)(nil)

// RedisStore implements tree.ExpansionStore on a single Redis hash.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and checks that it answers.
func NewRedisStore(redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("uistate: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("uistate: connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key() string {
	return s.prefix + "expansion"
}

// GetExpansion returns every flag in the hash.
func (s *RedisStore) GetExpansion(ctx context.Context) (map[string]bool, error) {
	raw, err := s.client.HGetAll(ctx, s.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("uistate: get expansion: %w", err)
	}
	out := make(map[string]bool, len(raw))
	for id, v := range raw {
		b, err := strconv.ParseBool(v)
		if err != nil {
			continue
		}
		out[id] = b
	}
	return out, nil
}

// SetExpansion merges flags into the hash.
func (s *RedisStore) SetExpansion(ctx context.Context, flags map[string]bool) error {
	if len(flags) == 0 {
		return nil
	}
	values := make(map[string]any, len(flags))
	for id, v := range flags {
		values[id] = strconv.FormatBool(v)
	}
	if err := s.client.HSet(ctx, s.key(), values).Err(); err != nil {
		return fmt.Errorf("uistate: set expansion: %w", err)
	}
	return nil
}

// Forget drops the flags of ids, e.g. after their folders were deleted.
func (s *RedisStore) Forget(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.key(), ids...).Err(); err != nil {
		return fmt.Errorf("uistate: forget: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
