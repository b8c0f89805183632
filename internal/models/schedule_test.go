package models

import (
	"testing"
	"time"
)

func TestDepartureAtSameYear(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	trip := Trip{Date: "15.03", Time: "08:30"}
	got := trip.DepartureAt(now)
	want := time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDepartureAtRollsIntoNextYear(t *testing.T) {
	now := time.Date(2026, 12, 30, 18, 0, 0, 0, time.UTC)
	trip := Trip{Date: "02.01", Time: "07:00"}
	got := trip.DepartureAt(now)
	if got.Year() != 2027 {
		t.Fatalf("expected 2027 departure, got %v", got)
	}
	if !trip.Active(now) || trip.Expired(now) {
		t.Fatalf("next-year trip should be active and not expired")
	}
}

func TestDepartureAtWithinGraceWindowStaysInPast(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	trip := Trip{Date: "01.05", Time: "09:30"}
	if !trip.Expired(now) {
		t.Fatalf("trip 30 minutes in the past should be expired")
	}
	if trip.Active(now) {
		t.Fatalf("expired trip must not be active")
	}
}

func TestDepartureAtAcceptsMeetingPlaceAfterTime(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	trip := Trip{Date: "2.5", Time: "15:00 Центральный автовокзал"}
	want := time.Date(2026, 5, 2, 15, 0, 0, 0, time.UTC)
	if got := trip.DepartureAt(now); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDepartureAtUnparsableIsSentinel(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	cases := []Trip{
		{Date: "", Time: "10:00"},
		{Date: "tomorrow", Time: "10:00"},
		{Date: "31.02", Time: "10:00"},
		{Date: "01.13", Time: "10:00"},
		{Date: "01.05", Time: ""},
		{Date: "01.05", Time: "morning"},
		{Date: "01.05", Time: "25:00"},
		{Date: "01.05", Time: "10:5"},
	}
	for _, trip := range cases {
		if got := trip.DepartureAt(now); !got.IsZero() {
			t.Fatalf("date=%q time=%q: expected sentinel, got %v", trip.Date, trip.Time, got)
		}
		if trip.Active(now) || trip.Expired(now) {
			t.Fatalf("date=%q time=%q: sentinel must be neither active nor expired", trip.Date, trip.Time)
		}
	}
}

func TestSplitRoute(t *testing.T) {
	dep, arr, ok := SplitRoute(" Уфа →  Белорецк ")
	if !ok || dep != "Уфа" || arr != "Белорецк" {
		t.Fatalf("unexpected split: %q %q %v", dep, arr, ok)
	}
	if _, _, ok := SplitRoute("Уфа - Белорецк"); ok {
		t.Fatalf("missing separator should not split")
	}
}

func TestSnapshotNormalizeRepairsCounter(t *testing.T) {
	s := &Snapshot{Trips: map[int]*Trip{7: {ID: 7}}}
	s.Normalize()
	if s.TripCounter != 8 {
		t.Fatalf("expected counter 8, got %d", s.TripCounter)
	}
	if s.Users == nil || s.PendingRequests == nil || s.DriverTripMessageIDs == nil {
		t.Fatalf("normalize left nil collections")
	}
	if s.Trips[7].Passengers == nil {
		t.Fatalf("normalize left nil passengers")
	}
}
