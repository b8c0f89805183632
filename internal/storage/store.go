package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ridebot/internal/models"
	"github.com/example/ridebot/internal/observability"
)

// ErrNotFound is returned by a Backend that holds no snapshot yet.
var ErrNotFound = errors.New("snapshot not found")

// Backend is durable storage for one encoded snapshot document.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Store encodes the registry snapshot and keeps it on a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

func NewStore(backend Backend, logger *slog.Logger) *Store {
	return &Store{backend: backend, logger: logger}
}

// Load returns the stored snapshot. A missing document yields an empty
// registry; an unreadable or undecodable one is logged and also yields an
// empty registry so the process can still start.
func (s *Store) Load(ctx context.Context) *models.Snapshot {
	data, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNotFound) {
		return models.NewSnapshot()
	}
	if err != nil {
		s.logger.Error("snapshot read failed, starting empty", "error", err)
		return models.NewSnapshot()
	}
	snap, err := Decode(data)
	if err != nil {
		s.logger.Error("snapshot decode failed, starting empty", "error", err)
		return models.NewSnapshot()
	}
	s.logger.Info("snapshot loaded", "users", len(snap.Users), "trips", len(snap.Trips), "trip_counter", snap.TripCounter)
	return snap
}

// Save re-encodes the whole snapshot and overwrites the stored document.
func (s *Store) Save(ctx context.Context, snap *models.Snapshot) error {
	start := time.Now()
	data, err := Encode(snap)
	if err == nil {
		err = s.backend.Write(ctx, data)
	}
	observability.SnapshotSaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.SnapshotSaves.WithLabelValues("error").Inc()
		return fmt.Errorf("save snapshot: %w", err)
	}
	observability.SnapshotSaves.WithLabelValues("ok").Inc()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.backend.Ping(ctx) }

func (s *Store) Close() error { return s.backend.Close() }

func Encode(snap *models.Snapshot) ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

func Decode(data []byte) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	snap.Normalize()
	return &snap, nil
}
