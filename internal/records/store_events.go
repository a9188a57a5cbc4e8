package records

import (
	"context"
	"database/sql"
	"fmt"
)

// AppendEvent records a history entry outside of a state change.
func (s *Store) AppendEvent(ctx context.Context, ev Event) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO record_events (record_id, event_type, stage, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.RecordID, ev.Type, nullableString(ev.Stage), nullableString(ev.Message), formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("append event for %s: %w", ev.RecordID, err)
	}
	return nil
}

// Events returns the history of a record in insertion order.
func (s *Store) Events(ctx context.Context, id string) ([]Event, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, record_id, event_type, stage, message, created_at
         FROM record_events WHERE record_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", id, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev         Event
			stage      sql.NullString
			message    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&ev.ID, &ev.RecordID, &ev.Type, &stage, &message, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Stage = stage.String
		ev.Message = message.String
		if ts, err := parseTimeString(createdRaw); err == nil {
			ev.At = ts
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev Event, timestamp string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO record_events (record_id, event_type, stage, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.RecordID, ev.Type, nullableString(ev.Stage), nullableString(ev.Message), timestamp,
	)
	return err
}
