package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"covercat/internal/api"
	"covercat/internal/config"
	"covercat/internal/ingest"
	"covercat/internal/logging"
	"covercat/internal/notifications"
	"covercat/internal/preflight"
	"covercat/internal/records"
	"covercat/internal/review"
	"covercat/internal/telemetry"
	"covercat/internal/workflow"
)

// ErrBatchRunning is returned when a background batch is already in flight.
var ErrBatchRunning = errors.New("a batch run is already in progress")

// Deps bundles the collaborators the daemon serves.
type Deps struct {
	Store       *records.Store
	Engine      *workflow.Engine
	Coordinator *workflow.Coordinator
	Review      *review.Service
	Ingester    *ingest.Ingester
	Metrics     *telemetry.Metrics
	Notifier    notifications.Service
}

// Daemon coordinates the API server and folder watch and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Deps
	watch  bool

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running      atomic.Bool
	batchRunning atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// Option configures optional daemon behavior.
type Option func(*Daemon)

// WithWatch enables ingesting new covers from the covers directory.
func WithWatch(enabled bool) Option {
	return func(d *Daemon) { d.watch = enabled }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Engine == nil || deps.Coordinator == nil || deps.Review == nil {
		return nil, errors.New("daemon requires config, store, engine, coordinator, and review service")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		deps:     deps,
		lockPath: cfg.DaemonLockPath(),
		lock:     flock.New(cfg.DaemonLockPath()),
	}
	if d.deps.Notifier == nil {
		d.deps.Notifier = notifications.NewService(nil)
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, reclaims interrupted runs, and launches the
// API server and optional folder watch.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another covercat serve instance is already running")
	}

	reclaimed, err := d.deps.Engine.ReclaimInterrupted(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reclaim interrupted runs: %w", err)
	}
	if len(reclaimed) > 0 {
		logging.WarnWithContext(d.logger, "reclaimed interrupted runs", "reclaim_interrupted",
			logging.Int("count", len(reclaimed)),
			logging.String("record_ids", strings.Join(reclaimed, ",")),
			logging.String(logging.FieldErrorHint, "a previous process exited mid-run; the records are runnable again"),
			logging.String(logging.FieldImpact, "attempt counts were not changed"),
		)
	}

	for _, failed := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldImpact, "stages depending on this check will fail"),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		d.cancel()
		_ = d.lock.Unlock()
		d.ctx, d.cancel = nil, nil
		return err
	}

	if d.watch && d.deps.Ingester != nil && d.cfg.Paths.CoversDir != "" {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.deps.Ingester.Watch(d.ctx, d.cfg.Paths.CoversDir, nil); err != nil {
				logging.ErrorWithContext(d.logger, "cover watch stopped", "ingest_watch_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check that the covers directory exists"),
				)
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("covercat daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop stops background work and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("covercat daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.deps.Store != nil {
		return d.deps.Store.Close()
	}
	return nil
}

// Addr returns the API listener address once started.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// StartBatch runs a batch in the background. Only one batch runs at a time.
func (d *Daemon) StartBatch(req api.BatchRunRequest) error {
	if !d.running.Load() || d.ctx == nil {
		return errors.New("daemon not running")
	}
	if !d.batchRunning.CompareAndSwap(false, true) {
		return ErrBatchRunning
	}
	ctx := d.ctx
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.batchRunning.Store(false)
		var (
			result workflow.BatchResult
			err    error
		)
		started := time.Now()
		if req.All {
			limit := req.Limit
			if limit <= 0 {
				limit = d.cfg.Workflow.BatchDefaultLimit
			}
			result, err = d.deps.Coordinator.RunPending(ctx, limit, req.Stage)
		} else {
			result = d.deps.Coordinator.RunBatch(ctx, req.IDs, req.Stage)
		}
		if err != nil {
			logging.ErrorWithContext(d.logger, "batch run failed", "batch_failed", logging.Error(err))
			return
		}
		d.logger.Info("batch run finished",
			logging.Int("items", len(result.Items)),
			logging.Int("failed", result.Failed()),
			logging.Bool("stopped", result.Stopped),
			logging.String(logging.FieldEventType, "batch_complete"),
		)
		if err := d.deps.Notifier.Publish(ctx, notifications.EventBatchCompleted, result.Payload(time.Since(started))); err != nil {
			logging.WarnWithContext(d.logger, "batch notification failed", "notification_failed", logging.Error(err))
		}
	}()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.deps.Store.Path(),
		LockFilePath: d.lockPath,
		BatchRunning: d.batchRunning.Load(),
		Stages:       api.StageHealthSlice(d.deps.Engine.Registry().CheckAll(ctx)),
	}
	if d.watch {
		status.Watching = d.cfg.Paths.CoversDir
	}
	if counts, err := d.deps.Store.Counts(ctx); err == nil {
		status.Counts = api.MergeCounts(counts)
	}
	return status
}
