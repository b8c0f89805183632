package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/ridebot/internal/models"
)

type Kind string

const (
	TripCreated   Kind = "trip_created"
	JoinRequested Kind = "join_requested"
	SeatConfirmed Kind = "seat_confirmed"
	JoinRejected  Kind = "join_rejected"
	SeatCancelled Kind = "seat_cancelled"
	RouteEdited   Kind = "route_edited"
	TripDeleted   Kind = "trip_deleted"
	TripExpired   Kind = "trip_expired"
)

// Event is one trip lifecycle change, published after the registry committed it.
type Event struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	TripID      int       `json:"trip_id"`
	DriverID    int64     `json:"driver_id"`
	PassengerID int64     `json:"passenger_id,omitempty"`
	Departure   string    `json:"departure"`
	Arrival     string    `json:"arrival"`
	Seats       int       `json:"seats"`
	At          time.Time `json:"at"`
}

func New(kind Kind, trip models.Trip, passengerID int64, at time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		TripID:      trip.ID,
		DriverID:    trip.DriverID,
		PassengerID: passengerID,
		Departure:   trip.Departure,
		Arrival:     trip.Arrival,
		Seats:       trip.Seats,
		At:          at.UTC(),
	}
}

// Publisher ships events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
