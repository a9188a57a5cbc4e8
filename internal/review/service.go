package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"covercat/internal/lock"
	"covercat/internal/logging"
	"covercat/internal/records"
	"covercat/internal/stage"
	"covercat/internal/telemetry"
	"covercat/internal/workflow"
)

// ErrInvalidEdit marks attribute edits that name no stage output or set
// nothing.
var ErrInvalidEdit = errors.New("invalid edit")

// Service exposes snapshot and override operations.
type Service struct {
	store         *records.Store
	registry      *stage.Registry
	locker        lock.Locker
	logger        *slog.Logger
	metrics       *telemetry.Metrics
	snapshotLimit int
	now           func() time.Time
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithMetrics attaches a Prometheus recorder.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSnapshotLimit bounds the review list returned by Snapshot.
func WithSnapshotLimit(limit int) Option {
	return func(s *Service) { s.snapshotLimit = limit }
}

// NewService builds a review service sharing the engine's registry and locker.
func NewService(engine *workflow.Engine, store *records.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: engine.Registry(),
		locker:   engine.Locker(),
		logger:   logging.NewComponentLogger(logger, "review"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Approve marks the current stage of a record in review as manually
// succeeded. corrected attributes are merged and the record advances exactly
// one stage.
func (s *Service) Approve(ctx context.Context, id string, corrected records.Attributes) (*records.Record, error) {
	return s.mutate(ctx, id, "approve", func(rec *records.Record) (records.Event, error) {
		if rec.Status != records.StatusReview {
			return records.Event{}, &workflow.TransitionError{RecordID: id, Operation: "approve", Status: rec.Status}
		}
		approved := rec.CurrentStage
		next := records.StageDone
		if approved != records.StageDone {
			var ok bool
			if next, ok = s.registry.Next(approved); !ok {
				return records.Event{}, &workflow.UnknownStageError{Stage: approved}
			}
		}
		rec.Attributes = rec.Attributes.Merge(corrected)
		rec.SetAttempts(approved, 0)
		rec.CurrentStage = next
		rec.Status = records.StatusSucceeded
		rec.ReviewReason = ""
		rec.LastError = ""
		rec.EscalatedAt = nil
		msg := fmt.Sprintf("approved %s; advanced to %s", approved, next)
		if keys := corrected.Keys(); len(keys) > 0 {
			msg = fmt.Sprintf("%s (set %v)", msg, keys)
		}
		return records.Event{Type: records.EventApproved, Stage: approved, Message: msg}, nil
	})
}

// RetryFrom rewinds a record to stageName with a fresh attempt count.
// Attributes produced by stageName and every later stage are cleared so the
// rerun cannot observe stale downstream values.
func (s *Service) RetryFrom(ctx context.Context, id, stageName string) (*records.Record, error) {
	if _, ok := s.registry.Lookup(stageName); !ok {
		return nil, &workflow.UnknownStageError{Stage: stageName}
	}
	return s.mutate(ctx, id, "retry_from", func(rec *records.Record) (records.Event, error) {
		if rec.Status == records.StatusRunning {
			return records.Event{}, &workflow.TransitionError{RecordID: id, Operation: "retry_from", Status: rec.Status}
		}
		from := rec.CurrentStage
		rec.Attributes = rec.Attributes.Without(s.registry.ProducedFrom(stageName)...)
		rec.SetAttempts(stageName, 0)
		rec.CurrentStage = stageName
		rec.Status = records.StatusPending
		rec.ReviewReason = ""
		rec.LastError = ""
		rec.EscalatedAt = nil
		return records.Event{Type: records.EventRetryFrom, Stage: stageName, Message: "rewound from " + from}, nil
	})
}

// MarkReview escalates a record manually. An empty reason records the
// default text.
func (s *Service) MarkReview(ctx context.Context, id, reason string) (*records.Record, error) {
	if reason == "" {
		reason = records.DefaultReviewReason
	}
	return s.mutate(ctx, id, "mark_review", func(rec *records.Record) (records.Event, error) {
		if rec.Status == records.StatusRunning {
			return records.Event{}, workflow.BusyError(id)
		}
		now := s.now()
		rec.Status = records.StatusReview
		rec.ReviewReason = reason
		rec.EscalatedAt = &now
		return records.Event{Type: records.EventMarkReview, Stage: rec.CurrentStage, Message: reason}, nil
	})
}

// List returns records matching filter, least recently updated first. Stage
// filters must name a registered stage or done.
func (s *Service) List(ctx context.Context, filter records.Filter) ([]*records.Record, error) {
	for _, name := range filter.Stages {
		if name == records.StageDone {
			continue
		}
		if _, ok := s.registry.Lookup(name); !ok {
			return nil, &workflow.UnknownStageError{Stage: name}
		}
	}
	return s.store.List(ctx, filter)
}

// Edit overwrites stage outputs on a record without moving it: the current
// stage, status, and attempt counts are kept, so a record in review stays in
// review. Only attributes some stage produces may be edited.
func (s *Service) Edit(ctx context.Context, id string, attrs records.Attributes) (*records.Record, error) {
	if len(attrs) == 0 {
		return nil, fmt.Errorf("%w: no attributes given", ErrInvalidEdit)
	}
	editable := make(map[string]bool)
	for _, name := range s.registry.ProducedFrom(s.registry.First()) {
		editable[name] = true
	}
	for _, key := range attrs.Keys() {
		if !editable[key] {
			return nil, fmt.Errorf("%w: %s is not produced by any stage", ErrInvalidEdit, key)
		}
	}
	return s.mutate(ctx, id, "edit", func(rec *records.Record) (records.Event, error) {
		if rec.Status == records.StatusRunning {
			return records.Event{}, workflow.BusyError(id)
		}
		rec.Attributes = rec.Attributes.Merge(attrs)
		return records.Event{Type: records.EventEdited, Stage: rec.CurrentStage, Message: fmt.Sprintf("set %v", attrs.Keys())}, nil
	})
}

// mutate loads the record under the per-record lock, applies fn, and saves
// with a version check. fn errors leave the record untouched.
func (s *Service) mutate(ctx context.Context, id, action string, fn func(*records.Record) (records.Event, error)) (*records.Record, error) {
	release, err := s.locker.TryLock(ctx, id)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, workflow.BusyError(id)
		}
		return nil, fmt.Errorf("lock record %s: %w", id, err)
	}
	defer release()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, workflow.TranslateStoreError(id, err)
	}
	prior := rec.Status
	priorStage := rec.CurrentStage
	ev, err := fn(rec)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, rec, ev); err != nil {
		return nil, workflow.TranslateStoreError(id, err)
	}
	s.metrics.ReviewAction(action)
	s.logger.Info("review action applied",
		logging.String(logging.FieldRecordID, id),
		logging.String(logging.FieldEventType, action),
		logging.String("from_stage", priorStage),
		logging.String("from_status", string(prior)),
		logging.String("to_stage", rec.CurrentStage),
		logging.String("to_status", string(rec.Status)),
	)
	return rec, nil
}
