package models

import (
	"strconv"
	"strings"
	"time"
)

// rollForwardAfter is how far in the past a departure may be before it is
// read as next year's date. It covers trips booked across New Year.
const rollForwardAfter = time.Hour

// DepartureAt resolves the trip's day.month and leading HH:mm against now's
// year and location. The zero time is returned when either field cannot be
// parsed.
func (t Trip) DepartureAt(now time.Time) time.Time {
	day, month, ok := parseDayMonth(t.Date)
	if !ok {
		return time.Time{}
	}
	hour, minute, ok := parseClock(t.Time)
	if !ok {
		return time.Time{}
	}
	dt, ok := civil(now.Year(), month, day, hour, minute, now.Location())
	if !ok {
		return time.Time{}
	}
	if dt.Before(now.Add(-rollForwardAfter)) {
		if next, ok := civil(now.Year()+1, month, day, hour, minute, now.Location()); ok {
			dt = next
		}
	}
	return dt
}

// Expired reports whether the trip has a known departure strictly before now.
func (t Trip) Expired(now time.Time) bool {
	dep := t.DepartureAt(now)
	return !dep.IsZero() && dep.Before(now)
}

// Active reports whether the trip has a known departure at or after now.
// Trips with an unparsable schedule are neither active nor expired.
func (t Trip) Active(now time.Time) bool {
	dep := t.DepartureAt(now)
	return !dep.IsZero() && !dep.Before(now)
}

func parseDayMonth(s string) (day, month int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return 0, 0, false
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	month, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return day, month, true
}

// parseClock reads the first whitespace separated token of s as H:mm.
func parseClock(s string) (hour, minute int, ok bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, 0, false
	}
	parts := strings.Split(fields[0], ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// civil builds a timestamp and rejects dates time.Date would normalize,
// such as 31.02 or 29.02 outside a leap year.
func civil(year, month, day, hour, minute int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	dt := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if dt.Month() != time.Month(month) || dt.Day() != day {
		return time.Time{}, false
	}
	return dt, true
}
