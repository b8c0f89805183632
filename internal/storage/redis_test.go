package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeRedis implements RedisClient for tests
type fakeRedis struct {
	failSet  int // number of times to fail Set before succeeding
	setCalls int
	value    []byte
}

func (f *fakeRedis) Get(ctx context.Context, key string) ([]byte, error) {
	if f.value == nil {
		return nil, ErrNotFound
	}
	return f.value, nil
}

func (f *fakeRedis) Set(ctx context.Context, key string, value []byte) error {
	f.setCalls++
	if f.setCalls <= f.failSet {
		return errors.New("set fail")
	}
	f.value = value
	return nil
}

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }
func (f *fakeRedis) Close() error                   { return nil }

func TestRedisBackendWriteSucceedsAfterRetries(t *testing.T) {
	f := &fakeRedis{failSet: 2}
	b := NewRedisBackendWithClient(f, "ridebot:snapshot")
	b.delay = 5 * time.Millisecond
	start := time.Now()
	if err := b.Write(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.setCalls != 3 {
		t.Fatalf("expected 3 set calls, got %d", f.setCalls)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("expected backoff between attempts")
	}
}

func TestRedisBackendWriteFailsWhenExhausted(t *testing.T) {
	f := &fakeRedis{failSet: 5}
	b := NewRedisBackendWithClient(f, "ridebot:snapshot")
	b.delay = time.Millisecond
	if err := b.Write(context.Background(), []byte(`{}`)); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.setCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.setCalls)
	}
}

func TestRedisBackendReadMissingKey(t *testing.T) {
	b := NewRedisBackendWithClient(&fakeRedis{}, "ridebot:snapshot")
	if _, err := b.Read(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
