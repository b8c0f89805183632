package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/example/ridebot/internal/events"
	"github.com/example/ridebot/internal/messenger"
	"github.com/example/ridebot/internal/observability"
	"github.com/example/ridebot/internal/registry"
)

const (
	verbJoin    = "join"
	verbConfirm = "confirm"
	verbReject  = "reject"
	verbDelete  = "delete"
	verbEdit    = "edit"
	verbCancel  = "cancel"
)

// parseCallback splits "<verb>_<tripID>". ok is false for anything that is
// not one of the trip verbs.
func parseCallback(data string) (verb string, tripID int, ok bool) {
	verb, raw, found := strings.Cut(data, "_")
	if !found {
		return "", 0, false
	}
	switch verb {
	case verbJoin, verbConfirm, verbReject, verbDelete, verbEdit, verbCancel:
	default:
		return "", 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return "", 0, false
	}
	return verb, id, true
}

// HandleCallback processes an inline button press from chatID. Trip verbs act
// regardless of the dialogue state; other payloads are picks (date or city)
// that feed the current dialogue step.
func (m *Machine) HandleCallback(ctx context.Context, chatID int64, data string) {
	if verb, tripID, ok := parseCallback(data); ok {
		m.tripAction(ctx, chatID, verb, tripID)
		return
	}

	st := m.states.get(chatID)
	if date, ok := strings.CutPrefix(data, datePrefix); ok {
		if st != StateDriverAwaitingDate {
			return
		}
		m.HandleText(ctx, chatID, date)
		return
	}
	if st == StateMainMenu || st == StateDriverAwaitingDate {
		return
	}
	m.HandleText(ctx, chatID, data)
}

func (m *Machine) tripAction(ctx context.Context, chatID int64, verb string, tripID int) {
	switch verb {
	case verbJoin:
		m.join(ctx, chatID, tripID)
	case verbConfirm:
		m.confirm(ctx, chatID, tripID)
	case verbReject:
		m.reject(ctx, chatID, tripID)
	case verbDelete:
		m.deleteTrip(ctx, chatID, tripID)
	case verbEdit:
		m.startEdit(ctx, chatID, tripID)
	case verbCancel:
		m.cancelSeat(ctx, chatID, tripID)
	}
}

func (m *Machine) join(ctx context.Context, passengerID int64, tripID int) {
	trip, err := m.reg.Join(ctx, tripID, passengerID)
	switch {
	case errors.Is(err, registry.ErrTripNotFound):
		m.send(ctx, passengerID, messenger.Message{Text: msgTripMissing})
		return
	case errors.Is(err, registry.ErrAlreadyRequested):
		m.send(ctx, passengerID, messenger.Message{Text: msgAlreadyAsked})
		return
	case err != nil:
		m.logger.Error("join failed", "chat_id", passengerID, "trip_id", tripID, "error", err)
		return
	}
	observability.JoinRequests.Inc()

	p, ok := m.reg.Profile(passengerID)
	name := p.Name
	if !ok || name == "" {
		name = fallbackPassenger
	}
	m.send(ctx, trip.DriverID, joinRequestView(trip, name, m.out.Handle(ctx, passengerID), p.Phone))
	m.send(ctx, passengerID, messenger.Message{Text: msgRequestSent})
	m.publish(ctx, events.JoinRequested, trip, passengerID)
}

// authorizeResolution rejects a confirm or reject pressed by someone other
// than the driver. A trip that no longer exists is left for the registry to
// resolve.
func (m *Machine) authorizeResolution(ctx context.Context, actorID int64, tripID int) bool {
	_, err := m.reg.OwnedTrip(tripID, actorID)
	if errors.Is(err, registry.ErrNotOwner) {
		m.send(ctx, actorID, messenger.Message{Text: msgNotOwner})
		return false
	}
	return true
}

func (m *Machine) confirm(ctx context.Context, actorID int64, tripID int) {
	if !m.authorizeResolution(ctx, actorID, tripID) {
		return
	}
	res, err := m.reg.Confirm(ctx, tripID)
	if err != nil {
		return
	}
	observability.Reservations.WithLabelValues(res.Outcome.String()).Inc()
	m.logger.Info("join request resolved", "trip_id", tripID, "passenger_id", res.PassengerID, "outcome", res.Outcome.String())

	switch res.Outcome {
	case registry.TripGone:
		m.send(ctx, res.PassengerID, messenger.Message{Text: msgTripVanished})
	case registry.NoSeats:
		m.send(ctx, res.PassengerID, messenger.Message{Text: msgNoSeats})
	case registry.Reserved:
		driver, _ := m.reg.Profile(res.Trip.DriverID)
		m.send(ctx, res.PassengerID, confirmedView(res.Trip, m.out.Handle(ctx, res.Trip.DriverID), driver.Phone))
		m.refreshDriverView(ctx, tripID)
		m.publish(ctx, events.SeatConfirmed, res.Trip, res.PassengerID)
	}
}

func (m *Machine) reject(ctx context.Context, actorID int64, tripID int) {
	if !m.authorizeResolution(ctx, actorID, tripID) {
		return
	}
	pid, err := m.reg.Reject(ctx, tripID)
	if err != nil {
		return
	}
	m.send(ctx, pid, messenger.Message{Text: msgRejected})
	if trip, ok := m.reg.Trip(tripID); ok {
		m.publish(ctx, events.JoinRejected, trip, pid)
	}
}

func (m *Machine) deleteTrip(ctx context.Context, actorID int64, tripID int) {
	trip, err := m.reg.Delete(ctx, tripID, actorID)
	switch {
	case errors.Is(err, registry.ErrNotOwner):
		m.send(ctx, actorID, messenger.Message{Text: msgNotOwner})
		return
	case err != nil:
		return
	}
	observability.TripsDeleted.Inc()
	m.logger.Info("trip deleted", "trip_id", tripID, "passengers", len(trip.Passengers))
	for _, pid := range trip.Passengers {
		m.send(ctx, pid, deletedView(trip))
	}
	m.send(ctx, actorID, messenger.Message{Text: msgTripDeleted})
	m.publish(ctx, events.TripDeleted, trip, 0)
}

func (m *Machine) startEdit(ctx context.Context, actorID int64, tripID int) {
	_, err := m.reg.OwnedTrip(tripID, actorID)
	switch {
	case errors.Is(err, registry.ErrNotOwner):
		m.send(ctx, actorID, messenger.Message{Text: msgNotOwner})
		return
	case err != nil:
		return
	}
	m.transition(ctx, actorID, EditingRoute(tripID), messenger.Message{Text: msgAskRoute})
}

func (m *Machine) cancelSeat(ctx context.Context, passengerID int64, tripID int) {
	trip, err := m.reg.Cancel(ctx, tripID, passengerID)
	if err != nil {
		return
	}
	observability.Cancellations.Inc()
	m.send(ctx, passengerID, messenger.Message{Text: msgSeatCancelled})
	m.refreshDriverView(ctx, tripID)
	m.publish(ctx, events.SeatCancelled, trip, passengerID)
}
