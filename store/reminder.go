package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// DueLocalLayout is the fixed, locale-invariant layout for persisted due
// times (month/day/year plus 24-hour time). Round-tripping through storage
// never depends on the ambient locale of the process.
const DueLocalLayout = "01/02/2006 15:04:05"

// RecurrenceInterval is the closed set of supported recurrence units.
type RecurrenceInterval string

const (
	RecurrenceNone    RecurrenceInterval = "NONE"
	RecurrenceDaily   RecurrenceInterval = "DAILY"
	RecurrenceWeekly  RecurrenceInterval = "WEEKLY"
	RecurrenceMonthly RecurrenceInterval = "MONTHLY"
	RecurrenceYearly  RecurrenceInterval = "YEARLY"
)

// IsValid reports whether the interval is one of the supported values.
func (r RecurrenceInterval) IsValid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	}
	return false
}

// Advance moves t forward by one unit using calendar arithmetic, so the
// time-of-day survives month-length changes and DST transitions. Advancing by
// None returns t unchanged.
func (r RecurrenceInterval) Advance(t time.Time) time.Time {
	switch r {
	case RecurrenceDaily:
		return t.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		return t.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return t.AddDate(0, 1, 0)
	case RecurrenceYearly:
		return t.AddDate(1, 0, 0)
	}
	return t
}

// Reminder is the durable entity the scheduling workflow operates on.
// Owner partitions records; UID is unique within an owner.
type Reminder struct {
	Owner      string
	UID        string
	Text       string
	DueLocal   string // wall-clock due time, DueLocalLayout
	Timezone   string // IANA zone name
	Recurrence RecurrenceInterval
	// Destination is an opaque reference with enough information to reach the
	// originating conversation; the workflow passes it through untouched.
	Destination string
	CreatedTs   int64
	UpdatedTs   int64
}

// DueLocalTime parses the stored due time into a timezone-naive time.Time
// (location UTC, wall clock as stored).
func (r *Reminder) DueLocalTime() (time.Time, error) {
	return ParseDueLocal(r.DueLocal)
}

// FormatDueLocal serializes a wall-clock due time to the storage layout.
func FormatDueLocal(t time.Time) string {
	return t.Format(DueLocalLayout)
}

// ParseDueLocal parses a stored due time string.
func ParseDueLocal(s string) (time.Time, error) {
	t, err := time.Parse(DueLocalLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "unparseable due time %q", s)
	}
	return t, nil
}

// FindReminder is the find condition for reminders.
type FindReminder struct {
	Owner string
	UID   *string
}

// DeleteReminder is the delete request for reminders.
type DeleteReminder struct {
	Owner string
	UID   string
}

// GetReminder gets a reminder by key. Absence is not an error: a deleted
// record returns (nil, nil).
func (s *Store) GetReminder(ctx context.Context, owner, uid string) (*Reminder, error) {
	list, err := s.driver.ListReminders(ctx, &FindReminder{Owner: owner, UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ListReminders lists all reminders for an owner. An empty owner lists every
// record, which the scheduler uses to sweep for unscheduled reminders at
// startup.
func (s *Store) ListReminders(ctx context.Context, owner string) ([]*Reminder, error) {
	return s.driver.ListReminders(ctx, &FindReminder{Owner: owner})
}

// UpsertReminder inserts or overwrites a reminder.
func (s *Store) UpsertReminder(ctx context.Context, upsert *Reminder) (*Reminder, error) {
	return s.driver.UpsertReminder(ctx, upsert)
}

// DeleteReminder deletes a reminder. Deleting an absent record is a no-op.
func (s *Store) DeleteReminder(ctx context.Context, owner, uid string) error {
	return s.driver.DeleteReminder(ctx, &DeleteReminder{Owner: owner, UID: uid})
}
