// tripevents tails the trip lifecycle topic and writes one JSON log record
// per event. It serves Prometheus counters and a readiness probe that checks
// the broker connection.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/pflag"

	"github.com/example/ridebot/internal/events"
	"github.com/example/ridebot/internal/logging"
)

var (
	eventsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripevents_consumed_total",
		Help: "Trip events consumed by kind",
	}, []string{"kind"})
	eventsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripevents_invalid_total",
		Help: "Messages that did not decode as trip events",
	})
)

func init() {
	prometheus.MustRegister(eventsConsumed, eventsInvalid)
}

const maxBackoff = 30 * time.Second

func main() {
	var metricsAddr, group, logLevel string
	flagSet := pflag.NewFlagSet("tripevents", pflag.ExitOnError)
	flagSet.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flagSet.StringVar(&group, "group", "ridebot-tripevents", "kafka consumer group")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level")
	flagSet.Parse(os.Args[1:])

	logger := logging.NewLogger(logLevel)

	brokers := splitBrokers(os.Getenv("KAFKA_BROKERS"))
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "trip-events"
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := pingBroker(r.Context(), brokers[0]); err != nil {
				http.Error(w, "kafka not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 1, MaxBytes: 10e6})
	defer r.Close()

	logger.Info("tailing trip events", "topic", topic, "brokers", brokers, "group", group)
	consume(ctx, r, logger, time.Second)
}

// MessageReader is the part of kafka.Reader the loop uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// consume reads until ctx is done, backing off on broker errors starting at
// initial and doubling up to maxBackoff.
func consume(ctx context.Context, r MessageReader, logger *slog.Logger, initial time.Duration) {
	backoff := initial
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initial

		ev, err := decodeEvent(m.Value)
		if err != nil {
			eventsInvalid.Inc()
			logger.Warn("invalid message", "offset", m.Offset, "error", err)
			continue
		}
		eventsConsumed.WithLabelValues(string(ev.Kind)).Inc()
		logger.Info("trip event",
			"kind", ev.Kind,
			"trip_id", ev.TripID,
			"driver_id", ev.DriverID,
			"passenger_id", ev.PassengerID,
			"route", ev.Departure+" → "+ev.Arrival,
			"seats", ev.Seats,
			"at", ev.At,
		)
	}
}

func decodeEvent(b []byte) (events.Event, error) {
	var ev events.Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return events.Event{}, err
	}
	if ev.Kind == "" || ev.TripID <= 0 {
		return events.Event{}, errors.New("missing kind or trip id")
	}
	return ev, nil
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func splitBrokers(v string) []string {
	var out []string
	for _, b := range strings.Split(v, ",") {
		if s := strings.TrimSpace(b); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func pingBroker(ctx context.Context, addr string) error {
	conn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn.Close()
}
