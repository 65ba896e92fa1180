package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that a database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Reminder model related methods.
	UpsertReminder(ctx context.Context, upsert *Reminder) (*Reminder, error)
	ListReminders(ctx context.Context, find *FindReminder) ([]*Reminder, error)
	DeleteReminder(ctx context.Context, delete *DeleteReminder) error

	// WorkflowTimer model related methods.
	UpsertWorkflowTimer(ctx context.Context, upsert *WorkflowTimer) (*WorkflowTimer, error)
	ListWorkflowTimers(ctx context.Context, find *FindWorkflowTimer) ([]*WorkflowTimer, error)
	DeleteWorkflowTimer(ctx context.Context, delete *DeleteWorkflowTimer) error
}
