package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/example/ridebot/internal/bot"
	"github.com/example/ridebot/internal/config"
	"github.com/example/ridebot/internal/dispatch"
	"github.com/example/ridebot/internal/events"
	httpapi "github.com/example/ridebot/internal/http"
	"github.com/example/ridebot/internal/logging"
	"github.com/example/ridebot/internal/messenger"
	"github.com/example/ridebot/internal/notify"
	"github.com/example/ridebot/internal/registry"
	"github.com/example/ridebot/internal/scheduler"
	"github.com/example/ridebot/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, httpAddr string
	flagSet := pflag.NewFlagSet("ridebot", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default: $"+config.ConfigFileEnv+")")
	flagSet.StringVar(&httpAddr, "http-addr", "", "ops HTTP listen address (overrides HTTP_ADDR)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	store := storage.NewStore(backend, logger)
	defer store.Close()

	reg := registry.New(store.Load(ctx), store, logger, registry.WithMaxActiveTrips(cfg.MaxActiveTrips))

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing trip events", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}
	defer pub.Close()

	var (
		msgr  messenger.Messenger
		chats httpapi.ChatEndpoint
	)
	switch cfg.Transport {
	case config.TransportWebsocket:
		gw := messenger.NewWSGateway(logger)
		msgr, chats = gw, gw
	default:
		tg, err := messenger.NewTelegram(cfg.TelegramToken, logger)
		if err != nil {
			return err
		}
		msgr = tg
	}

	out := notify.New(msgr, pub, logger)
	expiry := scheduler.NewExpiry(reg, out, cfg.SweepInterval, logger)
	machine := bot.NewMachine(reg, out, expiry, logger)
	disp := dispatch.New(msgr, machine, logger)
	srv := httpapi.NewServer(httpapi.Options{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}, store, chats, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		expiry.Run(ctx)
	}()

	httpErr := make(chan error, 1)
	go func() { httpErr <- srv.ListenAndServe() }()

	dispDone := make(chan error, 1)
	go func() { dispDone <- disp.Run(ctx) }()

	logger.Info("ridebot started", "transport", cfg.Transport, "backend", cfg.SnapshotBackend, "max_active_trips", cfg.MaxActiveTrips)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-httpErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	case err := <-dispDone:
		runErr = err
		dispDone <- nil
	}
	stop()

	// in-flight turns finish before the final save
	if err := <-dispDone; err != nil && runErr == nil {
		runErr = err
	}
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	reg.Flush(shutdownCtx)
	logger.Info("ridebot stopped")
	return runErr
}

func openBackend(ctx context.Context, cfg config.BotConfig, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.SnapshotBackend {
	case config.BackendRedis:
		return storage.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisSnapshotKey), nil
	case config.BackendPostgres:
		pg, err := storage.NewPostgresBackend(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		if cfg.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("snapshot schema migrated")
		}
		return pg, nil
	case config.BackendMemory:
		logger.Warn("snapshot kept in memory only, state is lost on exit")
		return storage.NewMemoryBackend(), nil
	default:
		return storage.NewFileBackend(cfg.SnapshotPath), nil
	}
}
