package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"covercat/internal/config"
	"covercat/internal/lock"
	"covercat/internal/logging"
	"covercat/internal/notifications"
	"covercat/internal/records"
	"covercat/internal/services"
	"covercat/internal/stage"
	"covercat/internal/telemetry"
)

// Engine runs single stages for single records.
type Engine struct {
	cfg      *config.Config
	store    *records.Store
	registry *stage.Registry
	locker   lock.Locker
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	notifier notifications.Service
	now      func() time.Time
}

// EngineOption configures optional Engine collaborators.
type EngineOption func(*Engine)

// WithLocker replaces the default in-process locker.
func WithLocker(l lock.Locker) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithMetrics attaches a Prometheus recorder.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithNotifier publishes escalations through n.
func WithNotifier(n notifications.Service) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithClock overrides the time source used for escalation timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an engine over the store and registry.
func NewEngine(cfg *config.Config, store *records.Store, registry *stage.Registry, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:      cfg,
		store:    store,
		registry: registry,
		locker:   lock.NewLocal(),
		notifier: notifications.NewService(nil),
		logger:   logging.NewComponentLogger(logger, "workflow"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the stage registry the engine runs against.
func (e *Engine) Registry() *stage.Registry { return e.registry }

// Locker returns the per-record locker shared with review operations.
func (e *Engine) Locker() lock.Locker { return e.locker }

// Run executes one stage for record id. An empty target runs the record's
// current stage. Handler failures are absorbed into the record state and
// reported through the Outcome; the returned error covers precondition, busy,
// lookup, persistence, and cancellation problems only.
func (e *Engine) Run(ctx context.Context, id, target string) (Outcome, error) {
	requestID := uuid.NewString()
	out := Outcome{RecordID: id, RequestID: requestID}

	release, err := e.locker.TryLock(ctx, id)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return out, BusyError(id)
		}
		return out, fmt.Errorf("lock record %s: %w", id, err)
	}
	defer release()

	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return out, TranslateStoreError(id, err)
	}

	if target == "" {
		target = rec.CurrentStage
		if rec.IsDone() {
			out.Stage = records.StageDone
			out.AdvancedTo = records.StageDone
			out.Status = rec.Status
			out.Noop = true
			return out, nil
		}
	}
	out.Stage = target

	desc, err := e.checkRunnable(rec, target)
	if err != nil {
		return out, err
	}

	ctx = services.WithRecordID(ctx, id)
	ctx = services.WithStage(ctx, desc.Name)
	ctx = services.WithRequestID(ctx, requestID)
	logger := logging.WithContext(ctx, e.logger)

	claimed, err := e.store.Claim(ctx, id, rec.Version)
	if err != nil {
		return out, TranslateStoreError(id, err)
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("current_stage", claimed.CurrentStage),
		logging.String("prior_status", string(claimed.ResumeStatus)),
		logging.Int("attempts", claimed.AttemptsFor(desc.Name)),
	)

	start := time.Now()
	produced, failure := e.invoke(ctx, desc, claimed.Attributes.Clone())
	elapsed := time.Since(start)
	out.Invoked = true

	if failure != nil && ctx.Err() != nil {
		return e.cancel(ctx, logger, claimed, desc, out, elapsed)
	}
	if failure != nil {
		return e.fail(ctx, logger, claimed, desc, failure, out, elapsed)
	}
	return e.succeed(ctx, logger, claimed, desc, produced, out, elapsed)
}

// checkRunnable validates status and stage order without mutating anything.
func (e *Engine) checkRunnable(rec *records.Record, target string) (stage.Descriptor, error) {
	switch rec.Status {
	case records.StatusRunning:
		return stage.Descriptor{}, BusyError(rec.ID)
	case records.StatusReview:
		return stage.Descriptor{}, &TransitionError{RecordID: rec.ID, Operation: "run", Status: rec.Status}
	}
	desc, ok := e.registry.Lookup(target)
	if !ok {
		return stage.Descriptor{}, &UnknownStageError{Stage: target}
	}
	targetIdx, _ := e.registry.Index(desc.Name)
	currentIdx, ok := e.registry.Index(rec.CurrentStage)
	if ok && targetIdx > currentIdx {
		return stage.Descriptor{}, &PreconditionError{RecordID: rec.ID, Stage: desc.Name, Current: rec.CurrentStage}
	}
	if missing := e.registry.MissingInputs(desc.Name, rec.Attributes); len(missing) > 0 {
		return stage.Descriptor{}, &PreconditionError{RecordID: rec.ID, Stage: desc.Name, Current: rec.CurrentStage, Missing: missing}
	}
	return desc, nil
}

func (e *Engine) maxAttempts(desc stage.Descriptor) int {
	if desc.MaxAttempts > 0 {
		return desc.MaxAttempts
	}
	if e.cfg != nil {
		return e.cfg.StageMaxAttempts(desc.Name)
	}
	return 1
}

func (e *Engine) timeout(desc stage.Descriptor) time.Duration {
	if desc.Timeout > 0 {
		return desc.Timeout
	}
	if e.cfg != nil {
		return e.cfg.StageTimeout(desc.Name)
	}
	return 0
}
