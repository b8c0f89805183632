package matcher

import (
	"sort"
	"strings"

	"github.com/example/ridebot/internal/models"
)

// Query is what a passenger searches for.
type Query struct {
	Departure string
	Arrival   string
}

// Matches reports whether trip serves q. The rendered route must contain both
// query cities, case-insensitively, and the trip must have a free seat.
// Containment is deliberate: "Уфа" also matches any city whose name contains it.
func Matches(trip models.Trip, q Query) bool {
	if q.Departure == "" || q.Arrival == "" {
		return false
	}
	if trip.Seats <= 0 {
		return false
	}
	route := strings.ToLower(trip.Route())
	return strings.Contains(route, strings.ToLower(q.Departure)) &&
		strings.Contains(route, strings.ToLower(q.Arrival))
}

// Filter returns the trips matching q ordered by trip id.
func Filter(trips []models.Trip, q Query) []models.Trip {
	out := make([]models.Trip, 0, len(trips))
	for _, t := range trips {
		if Matches(t, q) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
