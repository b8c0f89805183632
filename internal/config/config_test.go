package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		ConfigFileEnv, "TELEGRAM_TOKEN", "TRANSPORT", "SNAPSHOT_BACKEND", "SNAPSHOT_PATH",
		"REDIS_ADDR", "REDIS_SNAPSHOT_KEY", "PG_DSN", "MIGRATE", "KAFKA_BROKERS", "KAFKA_TOPIC",
		"HTTP_ADDR", "HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "HTTP_IDLE_TIMEOUT",
		"HTTP_SHUTDOWN_TIMEOUT", "SWEEP_INTERVAL", "MAX_ACTIVE_TRIPS", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport != TransportTelegram || cfg.SnapshotBackend != BackendFile || cfg.SnapshotPath != "data.json" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SweepInterval != time.Minute || cfg.MaxActiveTrips != 2 || cfg.KafkaTopic != "trip-events" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSPORT", "WebSocket")
	t.Setenv("SNAPSHOT_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("MAX_ACTIVE_TRIPS", "5")
	t.Setenv("MIGRATE", "TRUE")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport != TransportWebsocket || cfg.SnapshotBackend != BackendRedis {
		t.Fatalf("unexpected transport/backend %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.SweepInterval != 30*time.Second || cfg.MaxActiveTrips != 5 || !cfg.RunMigrations {
		t.Fatalf("unexpected values %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ridebot.yaml")
	body := "transport: websocket\nsnapshot_backend: postgres\npg_dsn: postgres://localhost/ridebot\nsweep_interval: 2m\nmax_active_trips: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("MAX_ACTIVE_TRIPS", "4")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SnapshotBackend != BackendPostgres || cfg.PGDSN != "postgres://localhost/ridebot" {
		t.Fatalf("file values not applied %+v", cfg)
	}
	if cfg.SweepInterval != 2*time.Minute {
		t.Fatalf("unexpected sweep interval %v", cfg.SweepInterval)
	}
	if cfg.MaxActiveTrips != 4 {
		t.Fatalf("env should override file, got %d", cfg.MaxActiveTrips)
	}
}

func TestLoadCollectsAllErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("SNAPSHOT_BACKEND", "redis")
	t.Setenv("SWEEP_INTERVAL", "soon")
	t.Setenv("MAX_ACTIVE_TRIPS", "0")
	_, err := Load("")
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"SWEEP_INTERVAL", "MAX_ACTIVE_TRIPS", "TELEGRAM_TOKEN", "REDIS_ADDR"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadMemoryBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSPORT", "websocket")
	t.Setenv("SNAPSHOT_BACKEND", "Memory")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SnapshotBackend != BackendMemory {
		t.Fatalf("unexpected backend %q", cfg.SnapshotBackend)
	}

	t.Setenv("SNAPSHOT_BACKEND", "sqlite")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "SNAPSHOT_BACKEND") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSPORT", "websocket")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for a missing config file")
	}
}
