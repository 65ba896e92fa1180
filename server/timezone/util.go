// Package timezone provides timezone utilities for nagbot.
//
// Stored reminder due times are wall-clock values paired with an IANA zone
// name; this package turns that pair into one unambiguous UTC instant, with a
// deterministic rule for DST folds and gaps.
package timezone

import (
	"fmt"
	"time"
)

// UTC is the coordinated universal time timezone
var UTC = time.UTC

// ParseTimezone parses an IANA timezone identifier (e.g., "America/New_York").
// If the timezone is invalid, returns UTC and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return UTC, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	return loc, nil
}

// MustParseTimezone parses a timezone or panics if invalid.
// Use this for constants that are known to be valid at compile time.
func MustParseTimezone(tz string) *time.Location {
	loc, err := ParseTimezone(tz)
	if err != nil {
		panic(err)
	}
	return loc
}

// IsValidTimezone checks if a timezone identifier is valid.
func IsValidTimezone(tz string) bool {
	if tz == "" || tz == "UTC" {
		return true
	}

	_, err := time.LoadLocation(tz)
	return err == nil
}

// ResolveLocal interprets the given wall-clock components in loc and returns
// the resulting instant.
//
// DST irregularities resolve deterministically:
//   - a gap (spring forward, the wall time does not exist) skips forward by the
//     transition amount, which is what time.Date already does;
//   - a fold (fall back, the wall time exists twice) picks the earlier of the
//     two UTC candidates.
func ResolveLocal(year int, month time.Month, day, hour, min, sec int, loc *time.Location) time.Time {
	if loc == nil {
		loc = UTC
	}

	t := time.Date(year, month, day, hour, min, sec, 0, loc)

	// Gap: the wall time does not exist and time.Date normalized it to some
	// nearby instant, on either side of the transition depending on the zone
	// data. Shift by the wall-clock difference so the result always lands
	// after the transition.
	if !sameWallClock(t, year, month, day, hour, min, sec) {
		want := time.Date(year, month, day, hour, min, sec, 0, time.UTC)
		got := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		return t.Add(want.Sub(got))
	}

	// Fold: if an earlier instant maps to the same wall clock, prefer it.
	// Transitions are one hour almost everywhere, thirty minutes in a few zones.
	for _, back := range []time.Duration{time.Hour, 30 * time.Minute} {
		if earlier := t.Add(-back); sameWallClock(earlier.In(loc), year, month, day, hour, min, sec) {
			return earlier
		}
	}

	return t
}

// ResolveLocalTime is ResolveLocal for a wall-clock value carried in a
// timezone-naive time.Time.
func ResolveLocalTime(wall time.Time, loc *time.Location) time.Time {
	return ResolveLocal(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), loc)
}

func sameWallClock(t time.Time, year int, month time.Month, day, hour, min, sec int) bool {
	return t.Year() == year && t.Month() == month && t.Day() == day &&
		t.Hour() == hour && t.Minute() == min && t.Second() == sec
}

// StartOfDay returns the start of the day (00:00:00) in the given timezone.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	return time.Date(t.In(tz).Year(), t.In(tz).Month(), t.In(tz).Day(), 0, 0, 0, 0, tz)
}
