package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ridebot/internal/events"
	"github.com/example/ridebot/internal/logging"
	"github.com/example/ridebot/internal/models"
)

// scriptedReader implements MessageReader for tests. It replays its script
// and then blocks until the context ends.
type scriptedReader struct {
	script    []func() (kafka.Message, error)
	calls     int
	exhausted chan struct{}
}

func (s *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if s.calls < len(s.script) {
		step := s.script[s.calls]
		s.calls++
		return step()
	}
	if s.calls == len(s.script) {
		s.calls++
		close(s.exhausted)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func TestConsumeSurvivesErrorsAndBadMessages(t *testing.T) {
	ev := events.New(events.SeatConfirmed, models.Trip{ID: 3, DriverID: 1, Departure: "Уфа", Arrival: "Инзер", Seats: 2}, 9, time.Now())
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	r := &scriptedReader{script: []func() (kafka.Message, error){
		func() (kafka.Message, error) { return kafka.Message{}, errors.New("broker down") },
		func() (kafka.Message, error) { return kafka.Message{Value: body}, nil },
		func() (kafka.Message, error) { return kafka.Message{Value: []byte("not json")}, nil },
	}, exhausted: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	start := time.Now()
	go func() {
		consume(ctx, r, logging.Discard(), 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-r.exhausted:
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not get through the script")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not stop on cancel")
	}
}

func TestDecodeEventRejectsIncomplete(t *testing.T) {
	if _, err := decodeEvent([]byte(`{"kind":"trip_created"}`)); err == nil {
		t.Fatalf("expected error for an event without trip id")
	}
	if _, err := decodeEvent([]byte(`{"kind":"trip_created","trip_id":4}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNextBackoffIsCapped(t *testing.T) {
	if got := nextBackoff(time.Second); got != 2*time.Second {
		t.Fatalf("unexpected backoff %v", got)
	}
	if got := nextBackoff(20 * time.Second); got != maxBackoff {
		t.Fatalf("backoff not capped: %v", got)
	}
}
