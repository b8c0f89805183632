package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportTelegram  = "telegram"
	TransportWebsocket = "websocket"

	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// ConfigFileEnv names the variable that points at an optional YAML file.
const ConfigFileEnv = "RIDEBOT_CONFIG"

// BotConfig captures all tunable parameters of the bot process. Values come
// from defaults, then an optional YAML file, then environment variables, so
// the binary runs locally with nothing but a token.
type BotConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	Transport     string `yaml:"transport"`

	SnapshotBackend  string `yaml:"snapshot_backend"`
	SnapshotPath     string `yaml:"snapshot_path"`
	RedisAddr        string `yaml:"redis_addr"`
	RedisPassword    string `yaml:"redis_password"`
	RedisSnapshotKey string `yaml:"redis_snapshot_key"`
	PGDSN            string `yaml:"pg_dsn"`
	RunMigrations    bool   `yaml:"migrate"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	HTTPAddr        string        `yaml:"http_addr"`
	ReadTimeout     time.Duration `yaml:"http_read_timeout"`
	WriteTimeout    time.Duration `yaml:"http_write_timeout"`
	IdleTimeout     time.Duration `yaml:"http_idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"http_shutdown_timeout"`

	SweepInterval  time.Duration `yaml:"sweep_interval"`
	MaxActiveTrips int           `yaml:"max_active_trips"`

	LogLevel string `yaml:"log_level"`
}

func defaultBotConfig() BotConfig {
	return BotConfig{
		Transport:        TransportTelegram,
		SnapshotBackend:  BackendFile,
		SnapshotPath:     "data.json",
		RedisSnapshotKey: "ridebot:snapshot",
		KafkaTopic:       "trip-events",
		HTTPAddr:         ":8080",
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     10 * time.Second,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		SweepInterval:    time.Minute,
		MaxActiveTrips:   2,
		LogLevel:         "info",
	}
}

// Load builds the configuration. path is the YAML file to read; when empty,
// RIDEBOT_CONFIG is consulted, and no file is read if both are empty.
func Load(path string) (BotConfig, error) {
	cfg := defaultBotConfig()
	var errs []error

	if path == "" {
		path = strings.TrimSpace(os.Getenv(ConfigFileEnv))
	}
	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			errs = append(errs, err)
		}
	}

	setStringFromEnv(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	setStringFromEnv(&cfg.Transport, "TRANSPORT")
	cfg.Transport = strings.ToLower(cfg.Transport)

	setStringFromEnv(&cfg.SnapshotBackend, "SNAPSHOT_BACKEND")
	cfg.SnapshotBackend = strings.ToLower(cfg.SnapshotBackend)
	setStringFromEnv(&cfg.SnapshotPath, "SNAPSHOT_PATH")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	if v, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
		cfg.RedisPassword = v
	}
	setStringFromEnv(&cfg.RedisSnapshotKey, "REDIS_SNAPSHOT_KEY")
	setStringFromEnv(&cfg.PGDSN, "PG_DSN")
	if v := os.Getenv("MIGRATE"); v != "" {
		cfg.RunMigrations = strings.EqualFold(v, "true")
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setDurationFromEnv(&cfg.SweepInterval, "SWEEP_INTERVAL", &errs)
	setIntFromEnv(&cfg.MaxActiveTrips, "MAX_ACTIVE_TRIPS", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	errs = append(errs, cfg.validate()...)
	return cfg, errors.Join(errs...)
}

func loadFile(cfg *BotConfig, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c BotConfig) validate() []error {
	var errs []error
	if c.MaxActiveTrips <= 0 {
		errs = append(errs, fmt.Errorf("MAX_ACTIVE_TRIPS must be > 0"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be > 0"))
	}
	switch c.Transport {
	case TransportTelegram:
		if c.TelegramToken == "" {
			errs = append(errs, fmt.Errorf("TELEGRAM_TOKEN is required for the telegram transport"))
		}
	case TransportWebsocket:
	default:
		errs = append(errs, fmt.Errorf("unknown TRANSPORT %q", c.Transport))
	}
	switch c.SnapshotBackend {
	case BackendFile:
		if c.SnapshotPath == "" {
			errs = append(errs, fmt.Errorf("SNAPSHOT_PATH is required for the file backend"))
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR is required for the redis backend"))
		}
	case BackendPostgres:
		if c.PGDSN == "" {
			errs = append(errs, fmt.Errorf("PG_DSN is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown SNAPSHOT_BACKEND %q", c.SnapshotBackend))
	}
	return errs
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
