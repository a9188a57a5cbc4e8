package workflow_test

import (
	"context"
	"testing"

	"covercat/internal/config"
	"covercat/internal/logging"
	"covercat/internal/records"
	"covercat/internal/stage"
	"covercat/internal/testsupport"
	"covercat/internal/workflow"
)

type harness struct {
	cfg      *config.Config
	store    *records.Store
	registry *stage.Registry
	engine   *workflow.Engine
}

func newHarness(t *testing.T, descs []stage.Descriptor, opts ...testsupport.ConfigOption) *harness {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	registry, err := stage.NewRegistry(descs...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return &harness{
		cfg:      cfg,
		store:    store,
		registry: registry,
		engine:   workflow.NewEngine(cfg, store, registry, logging.NewNop()),
	}
}

func succeedWith(attrs records.Attributes) stage.Handler {
	return stage.HandlerFunc(func(context.Context, records.Attributes) (records.Attributes, error) {
		return attrs, nil
	})
}

func failWith(err error) stage.Handler {
	return stage.HandlerFunc(func(context.Context, records.Attributes) (records.Attributes, error) {
		return nil, err
	})
}

// pipeline mirrors the movie stages with trivial handlers that can be
// swapped per test.
func pipeline(overrides map[string]stage.Handler) []stage.Descriptor {
	descs := []stage.Descriptor{
		{Name: "extraction", InputsRequired: []string{records.AttrImagePath}, Produces: []string{records.AttrTitle, records.AttrTeam},
			Handler: succeedWith(records.Attributes{records.AttrTitle: "Alien", records.AttrTeam: "Ridley Scott"})},
		{Name: "imdb", InputsRequired: []string{records.AttrTitle, records.AttrTeam}, Produces: []string{records.AttrIMDbURL, records.AttrIMDbID},
			Handler: succeedWith(records.Attributes{records.AttrIMDbURL: "https://www.imdb.com/title/tt0078748/", records.AttrIMDbID: "tt0078748"})},
		{Name: "omdb", InputsRequired: []string{records.AttrIMDbID}, Produces: []string{records.AttrOMDbJSON, records.AttrPlotEN},
			Handler: succeedWith(records.Attributes{records.AttrOMDbJSON: "{}", records.AttrPlotEN: "In space."})},
	}
	for i := range descs {
		if h, ok := overrides[descs[i].Name]; ok {
			descs[i].Handler = h
		}
	}
	return descs
}

func coverAttrs() records.Attributes {
	return records.Attributes{records.AttrImagePath: "/covers/alien.jpg"}
}

func atIMDb() records.Attributes {
	return records.Attributes{
		records.AttrImagePath: "/covers/alien.jpg",
		records.AttrTitle:     "Alien",
		records.AttrTeam:      "Ridley Scott",
	}
}

func eventTypes(t *testing.T, store *records.Store, id string) []string {
	t.Helper()
	events, err := store.Events(context.Background(), id)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}
