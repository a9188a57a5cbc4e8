package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"covercat/internal/ingest"
	"covercat/internal/logging"
	"covercat/internal/records"
	"covercat/internal/testsupport"
)

func TestRecordID(t *testing.T) {
	tests := map[string]string{
		"/covers/alien.jpg":         "alien",
		"covers/El Niño (2014).png": "El Niño (2014)",
		"poster.final.webp":         "poster.final",
	}
	for path, want := range tests {
		if got := ingest.RecordID(path); got != want {
			t.Fatalf("RecordID(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestScanInsertsSupportedCoversOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dir := cfg.Paths.CoversDir
	testsupport.WriteCoverImage(t, filepath.Join(dir, "b.png"), 10, 10)
	testsupport.WriteCoverImage(t, filepath.Join(dir, "a.jpg"), 10, 10)
	testsupport.WriteFile(t, filepath.Join(dir, "notes.txt"), "x")
	testsupport.WriteFile(t, filepath.Join(dir, ".hidden.jpg"), "x")
	if err := os.MkdirAll(filepath.Join(dir, "nested.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	ing := ingest.New(store, "extraction", logging.NewNop())
	result, err := ing.Scan(context.Background(), dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !reflect.DeepEqual(result.Added, []string{"a", "b"}) || !reflect.DeepEqual(result.Ignored, []string{"notes.txt"}) {
		t.Fatalf("unexpected result %+v", result)
	}
	rec := testsupport.MustGet(t, store, "a")
	if rec.CurrentStage != "extraction" || rec.Status != records.StatusPending || rec.Attributes[records.AttrImagePath] != filepath.Join(dir, "a.jpg") {
		t.Fatalf("unexpected record %+v", rec)
	}

	testsupport.WriteCoverImage(t, filepath.Join(dir, "a.webp.png"), 10, 10)
	result, err = ing.Scan(context.Background(), dir)
	if err != nil {
		t.Fatalf("second Scan failed: %v", err)
	}
	if !reflect.DeepEqual(result.Added, []string{"a.webp"}) || !reflect.DeepEqual(result.Duplicates, []string{"a", "b"}) {
		t.Fatalf("unexpected rescan result %+v", result)
	}
}

func TestScanMissingDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ing := ingest.New(store, "extraction", logging.NewNop())
	if _, err := ing.Scan(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestWatchIngestsNewCovers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	ing := ingest.New(store, "extraction", logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	added := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- ing.Watch(ctx, dir, func(id string) { added <- id }) }()

	path := filepath.Join(dir, "alien.jpg")
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	var got string
	for got == "" {
		select {
		case id := <-added:
			got = id
		case <-tick.C:
			// The watcher registers asynchronously; rewrite until it sees an event.
			testsupport.WriteCoverImage(t, path, 8, 8)
		case <-deadline:
			t.Fatal("timed out waiting for watch ingest")
		}
	}
	if got != "alien" {
		t.Fatalf("added id = %q", got)
	}
	if rec := testsupport.MustGet(t, store, "alien"); rec.Attributes[records.AttrImagePath] != path {
		t.Fatalf("unexpected image path %q", rec.Attributes[records.AttrImagePath])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}
