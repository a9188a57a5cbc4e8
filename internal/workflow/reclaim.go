package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"covercat/internal/lock"
	"covercat/internal/logging"
	"covercat/internal/records"
)

// ReclaimInterrupted returns records left running by a process that exited
// mid-run to the status they had before the claim. A record whose lock is
// held is skipped. When the locker only covers this process, a record is also
// skipped until it has been untouched for longer than StaleRunAge, since a
// run in another process may still own it.
func (e *Engine) ReclaimInterrupted(ctx context.Context) ([]string, error) {
	running, err := e.store.List(ctx, records.Filter{Statuses: []records.Status{records.StatusRunning}})
	if err != nil {
		return nil, fmt.Errorf("list running records: %w", err)
	}
	shared := lock.Shared(e.locker)
	staleAge := e.StaleRunAge()
	now := e.now()

	var reclaimed []string
	for _, rec := range running {
		if !shared && now.Sub(rec.UpdatedAt) < staleAge {
			e.logger.Debug("running record left alone",
				logging.String(logging.FieldRecordID, rec.ID),
				logging.String(logging.FieldEventType, "reclaim_skipped"),
				logging.String("reason", "recently claimed"),
			)
			continue
		}
		ok, err := e.reclaim(ctx, rec)
		if err != nil {
			return reclaimed, err
		}
		if ok {
			reclaimed = append(reclaimed, rec.ID)
		}
	}
	return reclaimed, nil
}

func (e *Engine) reclaim(ctx context.Context, rec *records.Record) (bool, error) {
	release, err := e.locker.TryLock(ctx, rec.ID)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			e.logger.Debug("running record left alone",
				logging.String(logging.FieldRecordID, rec.ID),
				logging.String(logging.FieldEventType, "reclaim_skipped"),
				logging.String("reason", "run in flight"),
			)
			return false, nil
		}
		return false, fmt.Errorf("lock record %s: %w", rec.ID, err)
	}
	defer release()

	if err := e.store.Reclaim(ctx, rec.ID, rec.Version); err != nil {
		if errors.Is(err, records.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// StaleRunAge is how long a running record must sit untouched before a
// process-local engine treats it as interrupted: the longest stage deadline,
// and never less than the lock lease.
func (e *Engine) StaleRunAge() time.Duration {
	var longest time.Duration
	for _, desc := range e.registry.Descriptors() {
		if t := e.timeout(desc); t > longest {
			longest = t
		}
	}
	if e.cfg != nil {
		if ttl := e.cfg.LockTTL(); ttl > longest {
			longest = ttl
		}
	}
	return longest
}
