package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"covercat/internal/logging"
	"covercat/internal/notifications"
	"covercat/internal/records"
	"covercat/internal/telemetry"
)

// Runner executes a single stage run. *Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, id, target string) (Outcome, error)
}

// BatchItem pairs a record id with its run result.
type BatchItem struct {
	RecordID string  `json:"record_id"`
	Outcome  Outcome `json:"outcome"`
	Err      error   `json:"-"`
}

// BatchResult lists per-item results in submission order.
type BatchResult struct {
	Items []BatchItem `json:"items"`
	// Waits counts inter-item delays applied.
	Waits int `json:"waits"`
	// Stopped reports that cancellation ended the batch before every item ran.
	Stopped bool `json:"stopped"`
}

// Failed returns the number of items whose run returned an error.
func (b BatchResult) Failed() int {
	n := 0
	for _, item := range b.Items {
		if item.Err != nil {
			n++
		}
	}
	return n
}

// Escalated returns the number of items whose run moved the record into
// review.
func (b BatchResult) Escalated() int {
	n := 0
	for _, item := range b.Items {
		if item.Err == nil && item.Outcome.Escalated() {
			n++
		}
	}
	return n
}

// Payload summarizes the batch for a batch_completed notification.
func (b BatchResult) Payload(elapsed time.Duration) notifications.Payload {
	return notifications.Payload{
		"items":     len(b.Items),
		"failed":    b.Failed(),
		"escalated": b.Escalated(),
		"stopped":   b.Stopped,
		"duration":  elapsed,
	}
}

// Coordinator sequences runs over batches. It never retries; retry and
// escalation belong to the engine.
type Coordinator struct {
	runner  Runner
	engine  *Engine
	store   *records.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// CoordinatorOption configures optional Coordinator behavior.
type CoordinatorOption func(*Coordinator)

// WithSleeper replaces the context-aware sleep used between batch items.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) CoordinatorOption {
	return func(c *Coordinator) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithRunner substitutes the stage runner, keeping the engine for registry
// lookups.
func WithRunner(r Runner) CoordinatorOption {
	return func(c *Coordinator) {
		if r != nil {
			c.runner = r
		}
	}
}

// NewCoordinator wraps engine for single and batch runs.
func NewCoordinator(engine *Engine, store *records.Store, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		runner:  engine,
		engine:  engine,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "coordinator"),
		metrics: engine.metrics,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunOne runs a single record.
func (c *Coordinator) RunOne(ctx context.Context, id, target string) (Outcome, error) {
	return c.runner.Run(ctx, id, target)
}

// RunBatch runs ids in order. After an item whose handler was invoked on a
// rate-limited stage, the stage's delay elapses before the next item; no
// delay follows the last item.
func (c *Coordinator) RunBatch(ctx context.Context, ids []string, target string) BatchResult {
	result := BatchResult{Items: make([]BatchItem, 0, len(ids))}
	for i, id := range ids {
		if ctx.Err() != nil {
			result.Stopped = true
			break
		}
		outcome, err := c.runner.Run(ctx, id, target)
		result.Items = append(result.Items, BatchItem{RecordID: id, Outcome: outcome, Err: err})
		c.metrics.BatchItem(batchLabel(outcome, err))
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("batch item failed",
				logging.String(logging.FieldRecordID, id),
				logging.Error(err),
				logging.String(logging.FieldEventType, "batch_item_failed"),
				logging.String(logging.FieldErrorHint, "inspect the record with covercat show"),
			)
		}

		if i == len(ids)-1 {
			break
		}
		delay, ok := c.delayAfter(outcome)
		if !ok {
			continue
		}
		if err := c.sleep(ctx, delay); err != nil {
			result.Stopped = true
			break
		}
		result.Waits++
		c.metrics.RateLimitWait(outcome.Stage)
	}
	if result.Stopped {
		c.logger.Info("batch stopped early",
			logging.Int("completed", len(result.Items)),
			logging.Int("requested", len(ids)),
			logging.String(logging.FieldEventType, "batch_stopped"),
		)
	}
	return result
}

// RunPending selects runnable records (pending, failed, or succeeded and not
// yet done) and runs them as a batch. When target is set only records whose
// current stage equals target are selected.
func (c *Coordinator) RunPending(ctx context.Context, limit int, target string) (BatchResult, error) {
	filter := records.Filter{
		Statuses:      []records.Status{records.StatusPending, records.StatusFailed, records.StatusSucceeded},
		ExcludeStages: []string{records.StageDone},
		Limit:         limit,
	}
	if target != "" {
		filter.Stages = []string{target}
	}
	recs, err := c.store.List(ctx, filter)
	if err != nil {
		return BatchResult{}, err
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	return c.RunBatch(ctx, ids, target), nil
}

func (c *Coordinator) delayAfter(outcome Outcome) (time.Duration, bool) {
	if !outcome.Invoked {
		return 0, false
	}
	desc, ok := c.engine.Registry().Lookup(outcome.Stage)
	if !ok || !desc.RateLimited || desc.Delay <= 0 {
		return 0, false
	}
	return desc.Delay, true
}

func batchLabel(outcome Outcome, err error) string {
	switch {
	case err != nil:
		return "error"
	case outcome.Noop:
		return "noop"
	case outcome.FailureKind != "":
		return string(outcome.Status)
	default:
		return "ok"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
