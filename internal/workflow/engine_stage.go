package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"covercat/internal/lock"
	"covercat/internal/logging"
	"covercat/internal/notifications"
	"covercat/internal/policy"
	"covercat/internal/records"
	"covercat/internal/services"
	"covercat/internal/stage"
)

// invoke runs the handler under the stage deadline. Panics become transient
// failures carrying the panic value.
func (e *Engine) invoke(ctx context.Context, desc stage.Descriptor, attrs records.Attributes) (produced records.Attributes, failure *stage.Failure) {
	runCtx := ctx
	cancel := func() {}
	if timeout := e.timeout(desc); timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			produced = nil
			failure = stage.Transient(fmt.Sprintf("handler panic: %v", r), nil)
		}
	}()

	result, err := desc.Handler.Execute(runCtx, attrs)
	if err == nil {
		return result, nil
	}
	if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &stage.Failure{Kind: stage.FailureTransient, Message: "timeout", Err: err}
	}
	failure = stage.Classify(err)
	if failure.Kind == stage.FailureCancelled && ctx.Err() == nil {
		// The handler gave up on its own; nobody cancelled the run.
		failure = &stage.Failure{Kind: stage.FailureTransient, Message: failure.Message, Err: failure.Err}
	}
	return nil, failure
}

func (e *Engine) succeed(ctx context.Context, logger *slog.Logger, rec *records.Record, desc stage.Descriptor, produced records.Attributes, out Outcome, elapsed time.Duration) (Outcome, error) {
	rec.Attributes = rec.Attributes.Merge(produced)
	rec.SetAttempts(desc.Name, 0)
	rec.LastError = ""
	rec.ReviewReason = ""
	rec.EscalatedAt = nil
	next, _ := e.registry.Next(desc.Name)
	nextIdx, _ := e.registry.Index(next)
	if currentIdx, ok := e.registry.Index(rec.CurrentStage); !ok || nextIdx > currentIdx {
		rec.CurrentStage = next
	}
	rec.Status = records.StatusSucceeded
	rec.ResumeStatus = ""

	events := []records.Event{
		{Type: records.EventStarted, Stage: desc.Name},
		{Type: records.EventSucceeded, Stage: desc.Name, Message: "advanced to " + rec.CurrentStage},
	}
	if err := e.store.Save(context.WithoutCancel(ctx), rec, events...); err != nil {
		return out, e.persistFailed(logger, rec.ID, err)
	}
	e.metrics.ObserveStage(desc.Name, "succeeded", elapsed)

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("advanced_to", rec.CurrentStage),
		logging.Int("attributes_written", len(produced)),
		logging.Duration("stage_duration", elapsed),
	)
	return fillOutcome(out, rec, desc.Name), nil
}

func (e *Engine) fail(ctx context.Context, logger *slog.Logger, rec *records.Record, desc stage.Descriptor, failure *stage.Failure, out Outcome, elapsed time.Duration) (Outcome, error) {
	attempts := rec.AttemptsFor(desc.Name) + 1
	maxAttempts := e.maxAttempts(desc)
	message := stage.Describe(failure)
	decision := policy.Decide(attempts, failure.Kind, maxAttempts)

	rec.SetAttempts(desc.Name, attempts)
	rec.LastError = message
	rec.ResumeStatus = ""
	events := []records.Event{
		{Type: records.EventStarted, Stage: desc.Name},
		{Type: records.EventFailed, Stage: desc.Name, Message: message},
	}
	if decision == policy.Escalate {
		now := e.now()
		rec.Status = records.StatusReview
		rec.ReviewReason = desc.Name + ": " + message
		rec.EscalatedAt = &now
		events = append(events, records.Event{Type: records.EventEscalated, Stage: desc.Name, Message: rec.ReviewReason})
	} else {
		rec.Status = records.StatusFailed
	}

	if err := e.store.Save(context.WithoutCancel(ctx), rec, events...); err != nil {
		return out, e.persistFailed(logger, rec.ID, err)
	}

	details := services.Details(failure.Err)
	attrs := []logging.Attr{
		logging.String("failure_kind", string(failure.Kind)),
		logging.String("error_message", message),
		logging.Int("attempts", attempts),
		logging.Int("max_attempts", maxAttempts),
		logging.Duration("stage_duration", elapsed),
		logging.String(logging.FieldErrorHint, details.Hint),
	}
	attrs = append(attrs, logging.DecisionAttrs("retry_policy", string(decision), string(failure.Kind))...)
	if decision == policy.Escalate {
		e.metrics.ObserveStage(desc.Name, "escalated", elapsed)
		e.metrics.Escalated(desc.Name, string(failure.Kind))
		logging.WarnWithContext(logger, "stage escalated to review", "stage_escalated",
			append(attrs, logging.String(logging.FieldImpact, "record waits for operator review"))...)
		e.notifyEscalated(ctx, logger, rec, desc.Name)
	} else {
		e.metrics.ObserveStage(desc.Name, "failed", elapsed)
		logging.WarnWithContext(logger, "stage failed", "stage_failure",
			append(attrs, logging.String(logging.FieldImpact, "record stays at stage for another run"))...)
	}
	out = fillOutcome(out, rec, desc.Name)
	out.FailureKind = failure.Kind
	out.Message = message
	return out, nil
}

func (e *Engine) notifyEscalated(ctx context.Context, logger *slog.Logger, rec *records.Record, stageName string) {
	err := e.notifier.Publish(context.WithoutCancel(ctx), notifications.EventRecordEscalated, notifications.Payload{
		"recordID": rec.ID,
		"stage":    stageName,
		"reason":   rec.ReviewReason,
	})
	if err != nil {
		logging.WarnWithContext(logger, "review notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "escalation was recorded but not pushed"),
		)
	}
}

// cancel puts the claimed record back the way it was before the run.
func (e *Engine) cancel(ctx context.Context, logger *slog.Logger, rec *records.Record, desc stage.Descriptor, out Outcome, elapsed time.Duration) (Outcome, error) {
	cause := ctx.Err()
	rec.Status = rec.ResumeStatus
	if rec.Status == "" {
		rec.Status = records.StatusPending
	}
	rec.ResumeStatus = ""
	ev := records.Event{Type: records.EventCancelled, Stage: desc.Name, Message: "run cancelled; previous status restored"}
	if err := e.store.Save(context.WithoutCancel(ctx), rec, ev); err != nil {
		return out, e.persistFailed(logger, rec.ID, err)
	}
	e.metrics.ObserveStage(desc.Name, "cancelled", elapsed)
	logger.Info("stage cancelled",
		logging.String(logging.FieldEventType, "stage_cancelled"),
		logging.String("restored_status", string(rec.Status)),
		logging.Duration("stage_duration", elapsed),
	)
	out = fillOutcome(out, rec, desc.Name)
	out.FailureKind = stage.FailureCancelled
	out.Message = cause.Error()
	return out, fmt.Errorf("run %s/%s: %w", rec.ID, desc.Name, cause)
}

func (e *Engine) persistFailed(logger *slog.Logger, id string, err error) error {
	wrapped := fmt.Errorf("persist run result for %s: %w", id, err)
	logging.ErrorWithContext(logger, "failed to persist stage result", "stage_persist_failed",
		logging.Error(wrapped),
		logging.String(logging.FieldErrorHint, e.reclaimHint()),
	)
	return wrapped
}

func (e *Engine) reclaimHint() string {
	if lock.Shared(e.locker) {
		return "record stays running until covercat serve starts and reclaims it; then covercat retry or run it again"
	}
	return fmt.Sprintf("record stays running until covercat serve starts after it has been idle for %s; then covercat retry or run it again", e.StaleRunAge())
}

func fillOutcome(out Outcome, rec *records.Record, stageName string) Outcome {
	out.Stage = stageName
	out.AdvancedTo = rec.CurrentStage
	out.Status = rec.Status
	out.Attempts = rec.AttemptsFor(stageName)
	return out
}
