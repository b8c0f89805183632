package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ridebot/internal/models"
)

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		panic("publish without deadline")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherKeysByTrip(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)
	trip := models.Trip{ID: 42, DriverID: 7, Departure: "Уфа", Arrival: "Инзер", Seats: 2}
	ev := New(SeatConfirmed, trip, 9, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "42" {
		t.Fatalf("unexpected key %q", m.Key)
	}
	var got Event
	if err := json.Unmarshal(m.Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.Kind != SeatConfirmed || got.PassengerID != 9 || got.Seats != 2 || got.ID == "" {
		t.Fatalf("unexpected event %+v", got)
	}
}
