package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nagbot/nagbot/store"
)

func (d *DB) UpsertReminder(ctx context.Context, upsert *store.Reminder) (*store.Reminder, error) {
	now := time.Now().Unix()
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = now
	}
	upsert.UpdatedTs = now

	fields := []string{"owner", "uid", "text", "due_local", "timezone", "recurrence", "destination", "created_ts", "updated_ts"}
	stmt := `INSERT INTO reminder (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(fields)) + `)
		ON CONFLICT (owner, uid) DO UPDATE SET
			text = excluded.text,
			due_local = excluded.due_local,
			timezone = excluded.timezone,
			recurrence = excluded.recurrence,
			destination = excluded.destination,
			updated_ts = excluded.updated_ts`

	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.Owner, upsert.UID, upsert.Text, upsert.DueLocal, upsert.Timezone,
		upsert.Recurrence, upsert.Destination, upsert.CreatedTs, upsert.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert reminder")
	}

	return upsert, nil
}

func (d *DB) ListReminders(ctx context.Context, find *store.FindReminder) ([]*store.Reminder, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.Owner != "" {
		where, args = append(where, "owner = "+placeholder(len(args)+1)), append(args, find.Owner)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT owner, uid, text, due_local, timezone, recurrence, destination, created_ts, updated_ts
		FROM reminder
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query reminders")
	}
	defer rows.Close()

	list := make([]*store.Reminder, 0)
	for rows.Next() {
		var reminder store.Reminder
		if err := rows.Scan(
			&reminder.Owner,
			&reminder.UID,
			&reminder.Text,
			&reminder.DueLocal,
			&reminder.Timezone,
			&reminder.Recurrence,
			&reminder.Destination,
			&reminder.CreatedTs,
			&reminder.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan reminder")
		}
		list = append(list, &reminder)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate reminders")
	}

	return list, nil
}

func (d *DB) DeleteReminder(ctx context.Context, delete *store.DeleteReminder) error {
	stmt := `DELETE FROM reminder WHERE owner = ` + placeholder(1) + ` AND uid = ` + placeholder(2)
	if _, err := d.db.ExecContext(ctx, stmt, delete.Owner, delete.UID); err != nil {
		return errors.Wrap(err, "failed to delete reminder")
	}
	return nil
}
