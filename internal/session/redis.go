package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces session keys
const DefaultRedisPrefix = "prodpro:session"

// RedisStore keeps the session in a Redis hash so several processes on one
// host can share a login.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore creates a store for the named session under prefix
func NewRedisStore(rdb *redis.Client, prefix, name string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		rdb: rdb,
		key: prefix + ":" + name,
	}
}

// Key returns the Redis key holding the session hash
func (r *RedisStore) Key() string {
	return r.key
}

func (r *RedisStore) Set(ctx context.Context, pair Pair) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.key)
	pipe.HSet(ctx, r.key, AccessTokenKey, pair.Access, RefreshTokenKey, pair.Refresh)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Access(ctx context.Context) (string, error) {
	return r.field(ctx, AccessTokenKey)
}

func (r *RedisStore) Refresh(ctx context.Context) (string, error) {
	return r.field(ctx, RefreshTokenKey)
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (r *RedisStore) field(ctx context.Context, name string) (string, error) {
	v, err := r.rdb.HGet(ctx, r.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session: %w", err)
	}
	return v, nil
}
