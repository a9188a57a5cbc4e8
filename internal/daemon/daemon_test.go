package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"covercat/internal/api"
	"covercat/internal/notifications"
	"covercat/internal/records"
	"covercat/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := f.daemon.Status(ctx)
	if !status.Running || status.LockFilePath != f.cfg.DaemonLockPath() || len(status.Stages) != 2 {
		t.Fatalf("unexpected status %+v", status)
	}
	if f.daemon.Addr() == "" {
		t.Fatal("expected api listener address")
	}

	// Second start should fail
	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other, err := New(f.cfg, f.daemon.deps, f.daemon.logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := other.Start(ctx); err == nil {
		other.Stop()
		t.Fatal("expected lock contention from a second daemon")
	}

	f.daemon.Stop()
	if f.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonStartReclaimsInterruptedRuns(t *testing.T) {
	f := newFixture(t, "")
	f.addCover(t, "stuck")
	testsupport.ForceState(t, f.store, "stuck", func(rec *records.Record) {
		rec.Status = records.StatusRunning
		rec.ResumeStatus = records.StatusFailed
	})
	f.skew.Store(int64(f.cfg.LockTTL() + time.Minute))

	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if rec := testsupport.MustGet(t, f.store, "stuck"); rec.Status != records.StatusFailed {
		t.Fatalf("expected reclaimed record to be failed again, got %s", rec.Status)
	}
}

func TestDaemonStartLeavesRecentRunsAlone(t *testing.T) {
	f := newFixture(t, "")
	f.addCover(t, "busy")
	testsupport.ForceState(t, f.store, "busy", func(rec *records.Record) {
		rec.Status = records.StatusRunning
		rec.ResumeStatus = records.StatusPending
	})

	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if rec := testsupport.MustGet(t, f.store, "busy"); rec.Status != records.StatusRunning {
		t.Fatalf("a run claimed moments ago may still be in flight elsewhere; got %s", rec.Status)
	}
}

func TestStartBatchRunsInBackground(t *testing.T) {
	f := newFixture(t, "")
	f.addCover(t, "a")
	f.addCover(t, "b")

	if err := f.daemon.StartBatch(api.BatchRunRequest{All: true}); err == nil {
		t.Fatal("expected batch to require a running daemon")
	}
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.daemon.StartBatch(api.BatchRunRequest{IDs: []string{"a", "b"}}); err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	if err := f.daemon.StartBatch(api.BatchRunRequest{All: true}); err != nil && !errors.Is(err, ErrBatchRunning) {
		t.Fatalf("unexpected second batch error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		a := testsupport.MustGet(t, f.store, "a")
		b := testsupport.MustGet(t, f.store, "b")
		if a.CurrentStage == "imdb" && b.CurrentStage == "imdb" && !f.daemon.batchRunning.Load() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch did not finish: a=%s/%s b=%s/%s", a.CurrentStage, a.Status, b.CurrentStage, b.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	deadline = time.Now().Add(5 * time.Second)
	for {
		events, payloads := f.notifier.snapshot()
		for i, event := range events {
			if event == notifications.EventBatchCompleted && payloads[i]["items"].(int) >= 1 {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected a batch_completed notification, got %v", events)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
