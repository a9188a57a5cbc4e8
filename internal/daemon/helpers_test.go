package daemon

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"covercat/internal/config"
	"covercat/internal/ingest"
	"covercat/internal/logging"
	"covercat/internal/notifications"
	"covercat/internal/records"
	"covercat/internal/review"
	"covercat/internal/stage"
	"covercat/internal/telemetry"
	"covercat/internal/testsupport"
	"covercat/internal/workflow"
)

type fixture struct {
	cfg      *config.Config
	store    *records.Store
	daemon   *Daemon
	notifier *recordingNotifier
	// skew shifts the engine clock forward.
	skew atomic.Int64
}

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingNotifier) snapshot() ([]notifications.Event, []notifications.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...), append([]notifications.Payload(nil), r.payloads...)
}

func newFixture(t *testing.T, token string, opts ...Option) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = token
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	registry, err := stage.NewRegistry(
		stage.Descriptor{
			Name:           "extraction",
			InputsRequired: []string{records.AttrImagePath},
			Produces:       []string{records.AttrTitle, records.AttrTeam},
			Handler: stage.HandlerFunc(func(context.Context, records.Attributes) (records.Attributes, error) {
				return records.Attributes{records.AttrTitle: "Alien", records.AttrTeam: "Ridley Scott"}, nil
			}),
		},
		stage.Descriptor{
			Name:           "imdb",
			InputsRequired: []string{records.AttrTitle, records.AttrTeam},
			Produces:       []string{records.AttrIMDbID},
			Handler: stage.HandlerFunc(func(context.Context, records.Attributes) (records.Attributes, error) {
				return nil, stage.Permanent("no feature film matched", nil)
			}),
		},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	metrics := telemetry.New()
	f := &fixture{cfg: cfg, store: store, notifier: &recordingNotifier{}}
	logger := logging.NewNop()
	engine := workflow.NewEngine(cfg, store, registry, logger,
		workflow.WithMetrics(metrics),
		workflow.WithNotifier(f.notifier),
		workflow.WithClock(func() time.Time { return time.Now().UTC().Add(time.Duration(f.skew.Load())) }),
	)
	deps := Deps{
		Store:       store,
		Engine:      engine,
		Coordinator: workflow.NewCoordinator(engine, store, logger),
		Review:      review.NewService(engine, store, logger, review.WithMetrics(metrics)),
		Ingester:    ingest.New(store, registry.First(), logger),
		Metrics:     metrics,
		Notifier:    f.notifier,
	}
	d, err := New(cfg, deps, logger, opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	f.daemon = d
	return f
}

func (f *fixture) addCover(t *testing.T, id string) {
	t.Helper()
	testsupport.NewRecord(t, f.store, id, "extraction", records.Attributes{records.AttrImagePath: "/covers/" + id + ".jpg"})
}
