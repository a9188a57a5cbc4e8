package testsupport

import (
	"context"
	"testing"

	"covercat/internal/config"
	"covercat/internal/records"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord inserts a pending record at firstStage using the provided store.
func NewRecord(t testing.TB, store *records.Store, id, firstStage string, attrs records.Attributes) *records.Record {
	t.Helper()

	rec, err := store.Insert(context.Background(), id, firstStage, attrs)
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return rec
}

// MustGet reloads a record, failing the test when it is missing.
func MustGet(t testing.TB, store *records.Store, id string) *records.Record {
	t.Helper()

	rec, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get(%s): %v", id, err)
	}
	return rec
}

// ForceState overwrites workflow columns of a stored record, bypassing the
// engine, so tests can start from an arbitrary point in the lifecycle.
func ForceState(t testing.TB, store *records.Store, id string, mutate func(*records.Record)) *records.Record {
	t.Helper()

	rec := MustGet(t, store, id)
	mutate(rec)
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("store.Save(%s): %v", id, err)
	}
	return rec
}
