package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nagbot/nagbot/store"
)

func (d *DB) UpsertWorkflowTimer(ctx context.Context, upsert *store.WorkflowTimer) (*store.WorkflowTimer, error) {
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = time.Now().Unix()
	}

	stmt := `INSERT INTO workflow_timer (owner, reminder_uid, fire_at, created_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (owner, reminder_uid) DO UPDATE SET
			fire_at = excluded.fire_at`

	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.Owner, upsert.ReminderUID, upsert.FireAt, upsert.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert workflow timer")
	}

	return upsert, nil
}

func (d *DB) ListWorkflowTimers(ctx context.Context, find *store.FindWorkflowTimer) ([]*store.WorkflowTimer, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.Owner; v != nil {
		where, args = append(where, "owner = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.ReminderUID; v != nil {
		where, args = append(where, "reminder_uid = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT owner, reminder_uid, fire_at, created_ts
		FROM workflow_timer
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY fire_at ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query workflow timers")
	}
	defer rows.Close()

	list := make([]*store.WorkflowTimer, 0)
	for rows.Next() {
		var timer store.WorkflowTimer
		if err := rows.Scan(
			&timer.Owner,
			&timer.ReminderUID,
			&timer.FireAt,
			&timer.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan workflow timer")
		}
		list = append(list, &timer)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate workflow timers")
	}

	return list, nil
}

func (d *DB) DeleteWorkflowTimer(ctx context.Context, delete *store.DeleteWorkflowTimer) error {
	stmt := `DELETE FROM workflow_timer WHERE owner = ` + placeholder(1) + ` AND reminder_uid = ` + placeholder(2)
	if _, err := d.db.ExecContext(ctx, stmt, delete.Owner, delete.ReminderUID); err != nil {
		return errors.Wrap(err, "failed to delete workflow timer")
	}
	return nil
}
