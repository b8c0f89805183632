package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ridebot/internal/events"
	"github.com/example/ridebot/internal/messenger"
	"github.com/example/ridebot/internal/models"
	"github.com/example/ridebot/internal/notify"
	"github.com/example/ridebot/internal/observability"
	"github.com/example/ridebot/internal/registry"
)

// DefaultInterval is how often departed trips are swept.
const DefaultInterval = time.Minute

// Expiry removes trips whose departure has passed and tells their passengers.
type Expiry struct {
	reg      *registry.Registry
	out      *notify.Notifier
	interval time.Duration
	logger   *slog.Logger
}

func NewExpiry(reg *registry.Registry, out *notify.Notifier, interval time.Duration, logger *slog.Logger) *Expiry {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Expiry{reg: reg, out: out, interval: interval, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (e *Expiry) Run(ctx context.Context) {
	e.Sweep(ctx)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep removes every departed trip and returns how many were removed.
// Calling it again without new departures does nothing.
func (e *Expiry) Sweep(ctx context.Context) int {
	expired := e.reg.SweepExpired(ctx)
	if len(expired) == 0 {
		return 0
	}
	observability.TripsExpired.Add(float64(len(expired)))
	now := e.reg.Now()
	for _, t := range expired {
		for _, pid := range t.Passengers {
			e.out.Send(ctx, pid, messenger.Message{Text: expiredText(t)})
		}
		e.out.Publish(ctx, events.New(events.TripExpired, t, 0, now))
	}
	e.logger.Info("expired trips removed", "count", len(expired))
	return len(expired)
}

func expiredText(t models.Trip) string {
	return fmt.Sprintf("ℹ️ Рейс %s от %s %s завершён и удалён.", t.Route(), t.Date, t.Time)
}
