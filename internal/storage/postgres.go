package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const createSnapshotsTable = `CREATE TABLE IF NOT EXISTS ridebot_snapshots (
	id TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresBackend keeps the snapshot as one row of ridebot_snapshots.
type PostgresBackend struct {
	db   *sql.DB
	name string
}

func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return NewPostgresBackendWithDB(db, "default"), nil
}

func NewPostgresBackendWithDB(db *sql.DB, name string) *PostgresBackend {
	return &PostgresBackend{db: db, name: name}
}

// Migrate creates the snapshot table when it does not exist.
func (p *PostgresBackend) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createSnapshotsTable); err != nil {
		return fmt.Errorf("migrate snapshots: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Read(ctx context.Context) ([]byte, error) {
	var body string
	err := p.db.QueryRowContext(ctx, `SELECT body FROM ridebot_snapshots WHERE id = $1`, p.name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return []byte(body), nil
}

func (p *PostgresBackend) Write(ctx context.Context, data []byte) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO ridebot_snapshots(id, body, updated_at) VALUES($1,$2,$3)
		 ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		p.name, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresBackend) Close() error { return p.db.Close() }
