package bot

import (
	"strconv"
	"strings"
	"sync"
)

// State is the dialogue position of one chat.
type State string

const (
	StateAwaitingName  State = "awaiting_name"
	StateAwaitingPhone State = "awaiting_phone"
	StateChoosingRole  State = "choosing_role"
	StateMainMenu      State = "main_menu"

	StateDriverAwaitingDate      State = "driver_awaiting_date"
	StateDriverAwaitingDeparture State = "driver_awaiting_departure"
	StateDriverAwaitingArrival   State = "driver_awaiting_arrival"
	StateDriverAwaitingTime      State = "driver_awaiting_time"
	StateDriverAwaitingCar       State = "driver_awaiting_car"
	StateDriverAwaitingPrice     State = "driver_awaiting_price"
	StateDriverAwaitingSeats     State = "driver_awaiting_seats"

	StatePassengerAwaitingDeparture State = "passenger_awaiting_departure"
	StatePassengerAwaitingArrival   State = "passenger_awaiting_arrival"
)

const editingRoutePrefix = "driver_editing_route:"

// EditingRoute is the state of a driver about to type a new route for tripID.
func EditingRoute(tripID int) State {
	return State(editingRoutePrefix + strconv.Itoa(tripID))
}

// EditedTrip reports the trip an editing state refers to.
func (s State) EditedTrip() (int, bool) {
	raw, ok := strings.CutPrefix(string(s), editingRoutePrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// stateStore keeps chat states in memory only. They are not persisted: after
// a restart every known chat resumes at the main menu.
type stateStore struct {
	mu     sync.Mutex
	states map[int64]State
}

func newStateStore() *stateStore {
	return &stateStore{states: make(map[int64]State)}
}

func (s *stateStore) get(chatID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[chatID]
	if !ok {
		return StateMainMenu
	}
	return st
}

func (s *stateStore) set(chatID int64, st State) {
	s.mu.Lock()
	s.states[chatID] = st
	s.mu.Unlock()
}
