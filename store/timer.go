package store

import (
	"context"
)

// WorkflowTimer is the durable checkpoint for a suspended scheduling workflow:
// "waiting until FireAt for reminder (Owner, ReminderUID)". The row is written
// before the workflow suspends and deleted once the occurrence is consumed, so
// a restarted process resumes waiting without re-running the scheduling steps.
// The (Owner, ReminderUID) key doubles as the per-occurrence idempotency
// token: redelivered trigger signals collapse onto the same pending wake.
type WorkflowTimer struct {
	Owner       string
	ReminderUID string
	FireAt      int64 // unix seconds, UTC
	CreatedTs   int64
}

// FindWorkflowTimer is the find condition for workflow timers.
type FindWorkflowTimer struct {
	Owner       *string
	ReminderUID *string
}

// DeleteWorkflowTimer is the delete request for workflow timers.
type DeleteWorkflowTimer struct {
	Owner       string
	ReminderUID string
}

// UpsertWorkflowTimer inserts or replaces the timer checkpoint for a reminder.
func (s *Store) UpsertWorkflowTimer(ctx context.Context, upsert *WorkflowTimer) (*WorkflowTimer, error) {
	return s.driver.UpsertWorkflowTimer(ctx, upsert)
}

// ListWorkflowTimers lists timer checkpoints; with a nil find, all of them
// (used to rehydrate the wait queue at startup).
func (s *Store) ListWorkflowTimers(ctx context.Context, find *FindWorkflowTimer) ([]*WorkflowTimer, error) {
	if find == nil {
		find = &FindWorkflowTimer{}
	}
	return s.driver.ListWorkflowTimers(ctx, find)
}

// GetWorkflowTimer gets the timer checkpoint for a reminder, or nil.
func (s *Store) GetWorkflowTimer(ctx context.Context, owner, reminderUID string) (*WorkflowTimer, error) {
	list, err := s.driver.ListWorkflowTimers(ctx, &FindWorkflowTimer{Owner: &owner, ReminderUID: &reminderUID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// DeleteWorkflowTimer removes the timer checkpoint for a reminder.
func (s *Store) DeleteWorkflowTimer(ctx context.Context, owner, reminderUID string) error {
	return s.driver.DeleteWorkflowTimer(ctx, &DeleteWorkflowTimer{Owner: owner, ReminderUID: reminderUID})
}
