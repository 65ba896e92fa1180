package recognizer

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nagbot/nagbot/store"
)

// ErrUnrecognized reports that the input could not be turned into a reminder.
// It is a normal outcome, not a fault: no candidates, an empty task text, a
// multi-unit recurrence, or no future-valid candidate all land here.
var ErrUnrecognized = errors.New("unrecognized reminder text")

// IsUnrecognized reports whether err is (or wraps) ErrUnrecognized.
func IsUnrecognized(err error) bool {
	return errors.Is(err, ErrUnrecognized)
}

// Request is the ephemeral recognition input.
type Request struct {
	// Text is the raw user input.
	Text string
	// Reference is the caller's current local time. Anchoring and the
	// future-validity check are relative to this instant.
	Reference time.Time
	// Locale selects the backend.
	Locale string
}

// Result is a normalized reminder ready to persist.
type Result struct {
	// Text is the extracted task description, with the time phrase and any
	// trailing preposition removed.
	Text string
	// DueLocal is the resolved due wall-clock time in the reference's
	// location, strictly after the reference instant.
	DueLocal time.Time
	// Recurrence is RecurrenceNone for one-shot reminders.
	Recurrence store.RecurrenceInterval
}

// Engine orchestrates a locale-selected backend's raw candidates into a
// single normalized result.
type Engine struct {
	registry *Registry
}

func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

var trailingPrepositionPattern = regexp.MustCompile(`(?i)\b(at|on|in|by|for|after|before|around|until)\s*$`)

// Recognize resolves text against the reference instant. It returns
// ErrUnrecognized when no reminder can be derived; any other error is a
// configuration fault (no backend for the locale).
func (e *Engine) Recognize(ctx context.Context, req Request) (*Result, error) {
	backend, err := e.registry.Select(req.Locale)
	if err != nil {
		return nil, err
	}

	candidates, err := backend.Recognize(ctx, req.Text, req.Reference)
	if err != nil || len(candidates) == 0 {
		return nil, ErrUnrecognized
	}

	task := extractTask(req.Text, candidates[0])
	if task == "" {
		return nil, ErrUnrecognized
	}

	for _, c := range candidates {
		due, kind := ParseValue(c.Value, req.Reference)
		if kind == KindInvalid {
			continue
		}
		due = advanceSameDayPast(due, req.Reference)
		if due.Before(req.Reference) {
			continue
		}

		recurrence := store.RecurrenceNone
		if c.RecurrenceUnit != "" {
			if c.RecurrenceSize != 1 {
				return nil, ErrUnrecognized
			}
			recurrence, err = mapRecurrenceUnit(c.RecurrenceUnit)
			if err != nil {
				return nil, ErrUnrecognized
			}
		}
		return &Result{Text: task, DueLocal: due, Recurrence: recurrence}, nil
	}
	return nil, ErrUnrecognized
}

// extractTask takes the input substring preceding the first candidate's
// matched span, trimmed, with a trailing preposition stripped.
func extractTask(input string, first Candidate) string {
	end := first.Start
	if end < 0 || end > len(input) {
		end = len(input)
	}
	task := strings.TrimSpace(input[:end])
	task = trailingPrepositionPattern.ReplaceAllString(task, "")
	return strings.TrimSpace(task)
}

// advanceSameDayPast pushes a same-day time that already elapsed to the next
// calendar day, so "at 8 AM" said in the afternoon means tomorrow morning.
func advanceSameDayPast(due, ref time.Time) time.Time {
	if due.Year() == ref.Year() && due.YearDay() == ref.YearDay() && due.Before(ref) {
		return due.AddDate(0, 0, 1)
	}
	return due
}

func mapRecurrenceUnit(unit string) (store.RecurrenceInterval, error) {
	switch strings.ToLower(unit) {
	case UnitDay:
		return store.RecurrenceDaily, nil
	case UnitWeek:
		return store.RecurrenceWeekly, nil
	case UnitMonth:
		return store.RecurrenceMonthly, nil
	case UnitYear:
		return store.RecurrenceYearly, nil
	default:
		return store.RecurrenceNone, errors.Errorf("unknown recurrence unit %q", unit)
	}
}
