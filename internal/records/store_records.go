package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Insert creates a record at firstStage with status pending. A record with the
// same id is never overwritten; ErrDuplicate is returned instead.
func (s *Store) Insert(ctx context.Context, id, firstStage string, attrs Attributes) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("insert record: id is required")
	}
	if strings.TrimSpace(firstStage) == "" {
		return nil, errors.New("insert record: first stage is required")
	}
	attributesJSON, err := encodeAttributes(attrs)
	if err != nil {
		return nil, err
	}
	timestamp := formatTime(s.now())

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO records (
                id, attributes_json, current_stage, status, attempts_json,
                version, created_at, updated_at
            ) VALUES (?, ?, ?, ?, '{}', 1, ?, ?)
            ON CONFLICT(id) DO NOTHING`,
			id, attributesJSON, firstStage, string(StatusPending), timestamp, timestamp,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrDuplicate
		}
		return insertEvent(ctx, tx, Event{RecordID: id, Type: EventIngested, Stage: firstStage}, timestamp)
	})
	if err != nil {
		return nil, fmt.Errorf("insert record %s: %w", id, err)
	}
	return s.Get(ctx, id)
}

// Get fetches a record by identifier.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	query, args, err := sq.Select(recordColumns...).From("records").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get query: %w", err)
	}
	rec, err := scanRecord(s.db.QueryRowContext(ensureContext(ctx), query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

// List returns records matching filter ordered by last update, oldest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Record, error) {
	builder := sq.Select(recordColumns...).From("records").OrderBy("updated_at ASC", "id ASC")
	if len(filter.IDs) > 0 {
		builder = builder.Where(sq.Eq{"id": filter.IDs})
	}
	if len(filter.Statuses) > 0 {
		builder = builder.Where(sq.Eq{"status": statusStrings(filter.Statuses)})
	}
	if len(filter.Stages) > 0 {
		builder = builder.Where(sq.Eq{"current_stage": filter.Stages})
	}
	if len(filter.ExcludeStages) > 0 {
		builder = builder.Where(sq.NotEq{"current_stage": filter.ExcludeStages})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	return s.queryRecords(ctx, builder, "list records")
}

// ReviewQueue returns records in review ordered by escalation time, oldest first.
func (s *Store) ReviewQueue(ctx context.Context, limit int) ([]*Record, error) {
	builder := sq.Select(recordColumns...).
		From("records").
		Where(sq.Eq{"status": string(StatusReview)}).
		OrderBy("escalated_at ASC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return s.queryRecords(ctx, builder, "review queue")
}

// Counts aggregates records by (current_stage, status).
func (s *Store) Counts(ctx context.Context) ([]StageStatusCount, error) {
	query, args, err := sq.Select("current_stage", "status", "COUNT(1)").
		From("records").
		GroupBy("current_stage", "status").
		OrderBy("current_stage", "status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build counts query: %w", err)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	var counts []StageStatusCount
	for rows.Next() {
		var (
			stage  string
			status string
			count  int
		)
		if err := rows.Scan(&stage, &status, &count); err != nil {
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		counts = append(counts, StageStatusCount{Stage: stage, Status: Status(status), Count: count})
	}
	return counts, rows.Err()
}

// Claim moves a non-running record into running, provided nobody has written
// it since expectedVersion was read. The prior status is kept in ResumeStatus
// so an interrupted run can be rolled back.
func (s *Store) Claim(ctx context.Context, id string, expectedVersion int64) (*Record, error) {
	query, args, err := sq.Update("records").
		Set("resume_status", sq.Expr("status")).
		Set("status", string(StatusRunning)).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", formatTime(s.now())).
		Where(sq.Eq{"id": id, "version": expectedVersion}).
		Where(sq.NotEq{"status": string(StatusRunning)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim query: %w", err)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim record %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim record %s: %w", id, err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("claim record %s: %w", id, ErrConflict)
	}
	return s.Get(ctx, id)
}

// Save persists rec if its stored version still equals rec.Version, appending
// events in the same transaction. On success rec.Version and rec.UpdatedAt
// reflect the new row.
func (s *Store) Save(ctx context.Context, rec *Record, events ...Event) error {
	if rec == nil {
		return errors.New("save record: record is nil")
	}
	attributesJSON, err := encodeAttributes(rec.Attributes)
	if err != nil {
		return err
	}
	attemptsJSON, err := encodeAttempts(rec.Attempts)
	if err != nil {
		return err
	}
	now := s.now()
	timestamp := formatTime(now)

	query, args, err := sq.Update("records").
		Set("attributes_json", attributesJSON).
		Set("current_stage", rec.CurrentStage).
		Set("status", string(rec.Status)).
		Set("attempts_json", attemptsJSON).
		Set("review_reason", nullableString(rec.ReviewReason)).
		Set("last_error", nullableString(rec.LastError)).
		Set("escalated_at", nullableTime(rec.EscalatedAt)).
		Set("resume_status", nullableString(string(rec.ResumeStatus))).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", timestamp).
		Where(sq.Eq{"id": rec.ID, "version": rec.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save query: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM records WHERE id = ?", rec.ID).Scan(&exists); err != nil {
				return err
			}
			if exists == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}
		for _, ev := range events {
			ev.RecordID = rec.ID
			if err := insertEvent(ctx, tx, ev, timestamp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.ID, err)
	}
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

// Reclaim restores a record left running by an interrupted process to the
// status it had before the claim. It returns ErrConflict when the row is no
// longer running at expectedVersion.
func (s *Store) Reclaim(ctx context.Context, id string, expectedVersion int64) error {
	timestamp := formatTime(s.now())
	query, args, err := sq.Update("records").
		Set("status", sq.Expr("COALESCE(resume_status, ?)", string(StatusPending))).
		Set("resume_status", nil).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", timestamp).
		Where(sq.Eq{"id": id, "version": expectedVersion, "status": string(StatusRunning)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reclaim query: %w", err)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrConflict
		}
		var stage string
		if err := tx.QueryRowContext(ctx, "SELECT current_stage FROM records WHERE id = ?", id).Scan(&stage); err != nil {
			return err
		}
		ev := Event{RecordID: id, Type: EventReclaimed, Stage: stage, Message: "run interrupted; previous status restored"}
		return insertEvent(ctx, tx, ev, timestamp)
	})
	if err != nil {
		return fmt.Errorf("reclaim record %s: %w", id, err)
	}
	return nil
}

func (s *Store) queryRecords(ctx context.Context, builder sq.SelectBuilder, op string) ([]*Record, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", op, err)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}
