package models

import (
	"slices"
	"strings"
)

// Role is the part a chat participant plays in the service.
type Role string

const (
	RoleUnset     Role = ""
	RoleDriver    Role = "Водитель"
	RolePassenger Role = "Попутчик"
)

// Draft holds the fields collected while a creation or search dialogue is in
// progress. It is overwritten turn by turn.
type Draft struct {
	Date      string `json:"date,omitempty"`
	Time      string `json:"time,omitempty"`
	Car       string `json:"car,omitempty"`
	Departure string `json:"departure,omitempty"`
	Arrival   string `json:"arrival,omitempty"`
	Price     string `json:"price,omitempty"`
}

type UserProfile struct {
	ChatID int64  `json:"chat_id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Role   Role   `json:"role"`
	Draft  Draft  `json:"draft"`
}

type Trip struct {
	ID         int     `json:"id"`
	DriverID   int64   `json:"driver_id"`
	DriverName string  `json:"driver_name"`
	Car        string  `json:"car"`
	Date       string  `json:"date"` // dd.MM
	Time       string  `json:"time"` // HH:mm, optionally followed by a meeting place
	Departure  string  `json:"departure"`
	Arrival    string  `json:"arrival"`
	Price      string  `json:"price"`
	Seats      int     `json:"seats"`
	Passengers []int64 `json:"passengers"`
}

// RouteSeparator joins departure and arrival in rendered routes and in the
// route edit format.
const RouteSeparator = "→"

func (t Trip) Route() string {
	return t.Departure + " " + RouteSeparator + " " + t.Arrival
}

func (t Trip) HasPassenger(id int64) bool {
	return slices.Contains(t.Passengers, id)
}

// Clone returns a copy that shares no memory with t.
func (t Trip) Clone() Trip {
	t.Passengers = slices.Clone(t.Passengers)
	if t.Passengers == nil {
		t.Passengers = []int64{}
	}
	return t
}

// SplitRoute parses "A → B". ok is false when the separator is missing.
func SplitRoute(s string) (departure, arrival string, ok bool) {
	parts := strings.Split(s, RouteSeparator)
	if len(parts) < 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

// Snapshot is the persisted form of the whole registry.
type Snapshot struct {
	Users                map[int64]*UserProfile `json:"users"`
	Trips                map[int]*Trip          `json:"trips"`
	PendingRequests      map[int]int64          `json:"pending_requests"`
	DriverTripMessageIDs map[int]int            `json:"driver_trip_message_ids"`
	TripCounter          int                    `json:"trip_counter"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Users:                make(map[int64]*UserProfile),
		Trips:                make(map[int]*Trip),
		PendingRequests:      make(map[int]int64),
		DriverTripMessageIDs: make(map[int]int),
		TripCounter:          1,
	}
}

// Normalize fills collections a decoded document left nil and repairs a
// counter that would reuse an existing trip id.
func (s *Snapshot) Normalize() {
	if s.Users == nil {
		s.Users = make(map[int64]*UserProfile)
	}
	if s.Trips == nil {
		s.Trips = make(map[int]*Trip)
	}
	if s.PendingRequests == nil {
		s.PendingRequests = make(map[int]int64)
	}
	if s.DriverTripMessageIDs == nil {
		s.DriverTripMessageIDs = make(map[int]int)
	}
	if s.TripCounter < 1 {
		s.TripCounter = 1
	}
	for id, t := range s.Trips {
		if t == nil {
			delete(s.Trips, id)
			continue
		}
		if t.Passengers == nil {
			t.Passengers = []int64{}
		}
		if id >= s.TripCounter {
			s.TripCounter = id + 1
		}
	}
	for id, u := range s.Users {
		if u == nil {
			delete(s.Users, id)
		}
	}
}
