package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/ridebot/internal/config"
	"github.com/example/ridebot/internal/logging"
	"github.com/example/ridebot/internal/storage"
)

func TestOpenBackendSelectsByConfig(t *testing.T) {
	ctx := context.Background()

	b, err := openBackend(ctx, config.BotConfig{SnapshotBackend: config.BackendMemory}, logging.Discard())
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := b.(*storage.MemoryBackend); !ok {
		t.Fatalf("expected memory backend, got %T", b)
	}

	path := filepath.Join(t.TempDir(), "data.json")
	b, err = openBackend(ctx, config.BotConfig{SnapshotBackend: config.BackendFile, SnapshotPath: path}, logging.Discard())
	if err != nil {
		t.Fatalf("file backend: %v", err)
	}
	if _, ok := b.(*storage.FileBackend); !ok {
		t.Fatalf("expected file backend, got %T", b)
	}
}
