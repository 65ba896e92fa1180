// Package recognizer turns free-form natural-language text plus a reference
// instant into a concrete future due time, an extracted task description and
// an optional recurrence interval.
//
// Locale-specific parsing lives in pluggable backends; the engine orders
// their candidates deterministically and commits to the first one that yields
// a valid future due time.
package recognizer

import (
	"context"
	"time"
)

// Candidate value layouts. A backend resolves an expression to exactly one of
// these shapes; the engine anchors partial values to the reference instant.
const (
	ValueDateTimeLayout = "2006-01-02 15:04:05"
	ValueDateLayout     = "2006-01-02"
	ValueTimeLayout     = "15:04:05"
)

// Recurrence units a candidate may carry.
const (
	UnitDay   = "day"
	UnitWeek  = "week"
	UnitMonth = "month"
	UnitYear  = "year"
)

// Candidate is one parser hypothesis for a date/time phrase in the input.
// Candidates are ranked by slice order, first-match-first.
type Candidate struct {
	// Text is the matched span in the input.
	Text string
	// Start is the byte offset of the span in the input.
	Start int
	// Value is the resolved date, time, or date-time string in one of the
	// Value*Layout shapes.
	Value string
	// RecurrenceUnit is empty for one-shot candidates, otherwise one of the
	// Unit* constants.
	RecurrenceUnit string
	// RecurrenceSize is the recurrence multiplicity ("every day" is 1,
	// "every 2 days" is 2). Only unit multiplicity is schedulable.
	RecurrenceSize int
}

// Backend is a locale-specific parser: text plus reference time in, zero or
// more ranked candidates out. A backend never fails recognition with an
// error; "nothing found" is an empty slice.
type Backend interface {
	Name() string
	// Locales returns the locales this backend declares support for. The
	// wildcard "*" matches any locale after exact declarations are exhausted.
	Locales() []string
	Recognize(ctx context.Context, text string, ref time.Time) ([]Candidate, error)
}

// ValueKind describes which layout a candidate value matched.
type ValueKind int

const (
	KindInvalid ValueKind = iota
	KindDateTime
	KindDate
	KindTime
)

// ParseValue parses a candidate value string in the reference instant's
// location. Time-only values anchor to the reference instant's calendar date.
func ParseValue(value string, ref time.Time) (time.Time, ValueKind) {
	loc := ref.Location()
	if t, err := time.ParseInLocation(ValueDateTimeLayout, value, loc); err == nil {
		return t, KindDateTime
	}
	if t, err := time.ParseInLocation(ValueDateLayout, value, loc); err == nil {
		return t, KindDate
	}
	if t, err := time.ParseInLocation(ValueTimeLayout, value, loc); err == nil {
		return time.Date(ref.Year(), ref.Month(), ref.Day(),
			t.Hour(), t.Minute(), t.Second(), 0, loc), KindTime
	}
	return time.Time{}, KindInvalid
}
