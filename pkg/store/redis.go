package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps each visitor's keys in one hash that expires after ttl
// of inactivity.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects and pings the server before returning.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, prefix: "onboarding:visitor:", ttl: ttl}, nil
}

func (r *RedisStore) hashKey(visitorID string) string {
	return r.prefix + visitorID
}

func (r *RedisStore) Get(ctx context.Context, visitorID, key string) (string, error) {
	value, err := r.client.HGet(ctx, r.hashKey(visitorID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis hget %s: %w", key, err)
	}
	return value, nil
}

func (r *RedisStore) Set(ctx context.Context, visitorID, key, value string) error {
	hk := r.hashKey(visitorID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, hk, key, value)
	if r.ttl > 0 {
		pipe.Expire(ctx, hk, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, visitorID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.hashKey(visitorID), keys...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
