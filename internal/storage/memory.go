package storage

import (
	"context"
	"slices"
	"sync"
)

// MemoryBackend keeps the snapshot in process. It backs SNAPSHOT_BACKEND=memory
// for throwaway local runs and the tests; nothing survives a restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   []byte
	writes int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Read(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, ErrNotFound
	}
	return slices.Clone(m.data), nil
}

func (m *MemoryBackend) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = slices.Clone(data)
	m.writes++
	return nil
}

// Writes reports how many times the snapshot was written.
func (m *MemoryBackend) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MemoryBackend) Ping(ctx context.Context) error { return nil }

func (m *MemoryBackend) Close() error { return nil }
