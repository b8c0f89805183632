package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of redis operations the snapshot backend needs.
type RedisClient interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *redisAdapter) Set(ctx context.Context, key string, value []byte) error {
	return r.c.Set(ctx, key, value, 0).Err()
}

func (r *redisAdapter) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

func (r *redisAdapter) Close() error { return r.c.Close() }

// RedisBackend keeps the snapshot under a single redis key.
type RedisBackend struct {
	client   RedisClient
	key      string
	attempts int
	delay    time.Duration
}

func NewRedisBackend(addr, password, key string) *RedisBackend {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return NewRedisBackendWithClient(&redisAdapter{c: c}, key)
}

func NewRedisBackendWithClient(client RedisClient, key string) *RedisBackend {
	return &RedisBackend{client: client, key: key, attempts: 3, delay: 200 * time.Millisecond}
}

func (r *RedisBackend) Read(ctx context.Context) ([]byte, error) {
	b, err := r.client.Get(ctx, r.key)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return b, nil
}

// Write retries transient failures with a doubling delay.
func (r *RedisBackend) Write(ctx context.Context, data []byte) error {
	delay := r.delay
	var err error
	for i := 0; i < r.attempts; i++ {
		if err = r.client.Set(ctx, r.key, data); err == nil {
			return nil
		}
		if i == r.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("redis set %s: %w", r.key, err)
}

func (r *RedisBackend) Ping(ctx context.Context) error { return r.client.Ping(ctx) }

func (r *RedisBackend) Close() error { return r.client.Close() }
