package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/ridebot/internal/events"
	"github.com/example/ridebot/internal/logging"
	"github.com/example/ridebot/internal/messenger"
	"github.com/example/ridebot/internal/models"
	"github.com/example/ridebot/internal/notify"
	"github.com/example/ridebot/internal/registry"
)

// fakeSender records outbound messages and can fail for chosen chats
type fakeSender struct {
	mu     sync.Mutex
	sent   map[int64][]string
	failTo map[int64]bool
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, msg messenger.Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[chatID] {
		return 0, errors.New("blocked by user")
	}
	if f.sent == nil {
		f.sent = make(map[int64][]string)
	}
	f.sent[chatID] = append(f.sent[chatID], msg.Text)
	return len(f.sent[chatID]), nil
}

func (f *fakeSender) Edit(ctx context.Context, chatID int64, messageID int, msg messenger.Message) error {
	return nil
}

func (f *fakeSender) Username(ctx context.Context, chatID int64) (string, error) {
	return "", nil
}

func (f *fakeSender) to(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[chatID]...)
}

type recordingPublisher struct {
	mu    sync.Mutex
	kinds []events.Kind
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	p.kinds = append(p.kinds, ev.Kind)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type nopSaver struct{}

func (nopSaver) Save(context.Context, *models.Snapshot) error { return nil }

var testNow = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func seedTrip(t *testing.T, reg *registry.Registry, driverID int64, date, clock string, passengers ...int64) models.Trip {
	t.Helper()
	ctx := context.Background()
	reg.UpdateProfile(ctx, driverID, func(p *models.UserProfile) {
		p.Name = "Driver"
		p.Role = models.RoleDriver
		p.Draft = models.Draft{Date: date, Time: clock, Departure: "Уфа", Arrival: "Инзер"}
	})
	trip, err := reg.CreateTrip(ctx, driverID, len(passengers)+1)
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	for _, pid := range passengers {
		if _, err := reg.Join(ctx, trip.ID, pid); err != nil {
			t.Fatal(err)
		}
		if _, err := reg.Confirm(ctx, trip.ID); err != nil {
			t.Fatal(err)
		}
	}
	return trip
}

func TestSweepRemovesDepartedTripsAndNotifies(t *testing.T) {
	reg := registry.New(models.NewSnapshot(), nopSaver{}, logging.Discard(),
		registry.WithClock(func() time.Time { return testNow }))
	sender := &fakeSender{failTo: map[int64]bool{21: true}}
	pub := &recordingPublisher{}
	exp := NewExpiry(reg, notify.New(sender, pub, logging.Discard()), time.Minute, logging.Discard())

	past := seedTrip(t, reg, 1, "10.06", "11:30", 20, 21)
	future := seedTrip(t, reg, 2, "15.06", "09:00", 30)

	if n := exp.Sweep(context.Background()); n != 1 {
		t.Fatalf("expected 1 expired trip, got %d", n)
	}
	if _, ok := reg.Trip(past.ID); ok {
		t.Fatalf("departed trip still present")
	}
	if _, ok := reg.Trip(future.ID); !ok {
		t.Fatalf("future trip removed")
	}
	msgs := sender.to(20)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "завершён и удалён") {
		t.Fatalf("unexpected passenger notification %v", msgs)
	}
	if len(sender.to(30)) != 0 {
		t.Fatalf("passenger of a future trip was notified")
	}
	if len(pub.kinds) != 1 || pub.kinds[0] != events.TripExpired {
		t.Fatalf("unexpected events %v", pub.kinds)
	}

	if n := exp.Sweep(context.Background()); n != 0 {
		t.Fatalf("second sweep removed %d trips", n)
	}
	if len(sender.to(20)) != 1 {
		t.Fatalf("second sweep notified again")
	}
}

func TestRunSweepsAtStartup(t *testing.T) {
	reg := registry.New(models.NewSnapshot(), nopSaver{}, logging.Discard(),
		registry.WithClock(func() time.Time { return testNow }))
	exp := NewExpiry(reg, notify.New(&fakeSender{}, nil, logging.Discard()), time.Hour, logging.Discard())
	past := seedTrip(t, reg, 1, "10.06", "11:30")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		exp.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := reg.Trip(past.ID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("startup sweep did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}
