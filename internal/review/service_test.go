package review_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"covercat/internal/logging"
	"covercat/internal/records"
	"covercat/internal/review"
	"covercat/internal/stage"
	"covercat/internal/testsupport"
	"covercat/internal/workflow"
)

type fixture struct {
	store   *records.Store
	engine  *workflow.Engine
	service *review.Service
}

func newFixture(t *testing.T, handlers map[string]stage.Handler) *fixture {
	t.Helper()
	ok := func(attrs records.Attributes) stage.Handler {
		return stage.HandlerFunc(func(context.Context, records.Attributes) (records.Attributes, error) {
			return attrs, nil
		})
	}
	descs := []stage.Descriptor{
		{Name: "extraction", Handler: ok(records.Attributes{records.AttrTitle: "Alien", records.AttrTeam: ""}),
			InputsRequired: []string{records.AttrImagePath}, Produces: []string{records.AttrTitle, records.AttrTeam}},
		{Name: "imdb", Handler: ok(records.Attributes{records.AttrIMDbID: "tt0078748", records.AttrIMDbURL: "u"}),
			InputsRequired: []string{records.AttrTitle, records.AttrTeam}, Produces: []string{records.AttrIMDbURL, records.AttrIMDbID}},
		{Name: "omdb", Handler: ok(records.Attributes{records.AttrPlotEN: "In space."}),
			InputsRequired: []string{records.AttrIMDbID}, Produces: []string{records.AttrOMDbJSON, records.AttrPlotEN}},
	}
	for i := range descs {
		if h, found := handlers[descs[i].Name]; found {
			descs[i].Handler = h
		}
	}
	registry, err := stage.NewRegistry(descs...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	engine := workflow.NewEngine(cfg, store, registry, logging.NewNop())
	return &fixture{
		store:   store,
		engine:  engine,
		service: review.NewService(engine, store, logging.NewNop(), review.WithSnapshotLimit(50)),
	}
}

func escalate(t *testing.T, f *fixture, id string) {
	t.Helper()
	out, err := f.engine.Run(context.Background(), id, "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Status != records.StatusReview {
		t.Fatalf("expected escalation, got %+v", out)
	}
}

func TestApproveMergesAndAdvances(t *testing.T) {
	f := newFixture(t, map[string]stage.Handler{
		"extraction": stage.HandlerFunc(func(context.Context, records.Attributes) (records.Attributes, error) {
			return nil, stage.Permanent("NO IDENTIFICADO", nil)
		}),
	})
	testsupport.NewRecord(t, f.store, "cover-1", "extraction", records.Attributes{records.AttrImagePath: "/c/a.jpg"})
	escalate(t, f, "cover-1")

	rec, err := f.service.Approve(context.Background(), "cover-1", records.Attributes{records.AttrTitle: "Fixed Title", records.AttrTeam: ""})
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if rec.Attributes[records.AttrTitle] != "Fixed Title" || rec.CurrentStage != "imdb" || rec.Status != records.StatusSucceeded {
		t.Fatalf("unexpected approved record: %+v", rec)
	}
	if rec.ReviewReason != "" || rec.LastError != "" || rec.AttemptsFor("extraction") != 0 || rec.EscalatedAt != nil {
		t.Fatalf("approve left review state behind: %+v", rec)
	}

	out, err := f.engine.Run(context.Background(), "cover-1", "")
	if err != nil {
		t.Fatalf("Run after approve failed: %v", err)
	}
	if out.Stage != "imdb" || out.AdvancedTo != "omdb" {
		t.Fatalf("approve must not cascade; next run outcome %+v", out)
	}
}

func TestApproveRequiresReview(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.NewRecord(t, f.store, "cover-1", "extraction", records.Attributes{records.AttrImagePath: "/c/a.jpg"})

	_, err := f.service.Approve(context.Background(), "cover-1", nil)
	var transition *workflow.TransitionError
	if !errors.As(err, &transition) || !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if rec := testsupport.MustGet(t, f.store, "cover-1"); rec.Status != records.StatusPending || rec.Version != 1 {
		t.Fatalf("rejected approve mutated record: %+v", rec)
	}
	if _, err := f.service.Approve(context.Background(), "missing", nil); !errors.Is(err, workflow.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRetryFromLaterStageAfterEscalation(t *testing.T) {
	f := newFixture(t, map[string]stage.Handler{
		"imdb": stage.HandlerFunc(func(context.Context, records.Attributes) (records.Attributes, error) {
			return nil, stage.Permanent("no search results", nil)
		}),
	})
	testsupport.NewRecord(t, f.store, "cover-1", "imdb", records.Attributes{
		records.AttrImagePath: "/c/a.jpg", records.AttrTitle: "Alien", records.AttrTeam: "",
		records.AttrPlotEN: "stale",
	})
	escalate(t, f, "cover-1")

	rec, err := f.service.RetryFrom(context.Background(), "cover-1", "omdb")
	if err != nil {
		t.Fatalf("RetryFrom failed: %v", err)
	}
	if rec.CurrentStage != "omdb" || rec.Status != records.StatusPending || rec.AttemptsFor("omdb") != 0 || rec.ReviewReason != "" {
		t.Fatalf("unexpected retry state: %+v", rec)
	}
	if rec.Attributes.Has(records.AttrPlotEN) {
		t.Fatal("expected attributes produced from omdb onward to be cleared")
	}
	if !rec.Attributes.Has(records.AttrTitle) {
		t.Fatal("upstream attributes must be kept")
	}
	if rec.AttemptsFor("imdb") != 1 {
		t.Fatalf("other stage attempts should be kept, got %d", rec.AttemptsFor("imdb"))
	}
}

func TestRetryFromErrors(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.NewRecord(t, f.store, "cover-1", "extraction", records.Attributes{records.AttrImagePath: "/c/a.jpg"})

	_, err := f.service.RetryFrom(context.Background(), "cover-1", "bogus")
	if !errors.Is(err, workflow.ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}

	testsupport.ForceState(t, f.store, "cover-1", func(rec *records.Record) { rec.Status = records.StatusRunning })
	if _, err := f.service.RetryFrom(context.Background(), "cover-1", "extraction"); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for running record, got %v", err)
	}
}

func TestMarkReviewAndSnapshotOrdering(t *testing.T) {
	f := newFixture(t, nil)
	for _, id := range []string{"cover-1", "cover-2", "cover-3"} {
		testsupport.NewRecord(t, f.store, id, "extraction", records.Attributes{records.AttrImagePath: "/c/" + id})
	}

	if _, err := f.service.MarkReview(context.Background(), "cover-2", ""); err != nil {
		t.Fatalf("MarkReview failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := f.service.MarkReview(context.Background(), "cover-1", "wrong cover art"); err != nil {
		t.Fatalf("MarkReview failed: %v", err)
	}

	snap, err := f.service.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Total != 3 || snap.ByStatus[records.StatusReview] != 2 || snap.ByStatus[records.StatusPending] != 1 || snap.ByStage["extraction"] != 3 {
		t.Fatalf("unexpected counts: %+v", snap)
	}
	if len(snap.Review) != 2 || snap.Review[0].RecordID != "cover-2" || snap.Review[1].RecordID != "cover-1" {
		t.Fatalf("unexpected review order: %+v", snap.Review)
	}
	if snap.Review[0].Reason != records.DefaultReviewReason || snap.Review[1].Reason != "wrong cover art" {
		t.Fatalf("unexpected reasons: %+v", snap.Review)
	}

	if _, err := f.engine.Run(context.Background(), "cover-1", ""); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("review record must not run automatically, got %v", err)
	}
}

func TestMarkReviewRejectsRunningRecord(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.NewRecord(t, f.store, "cover-1", "extraction", records.Attributes{records.AttrImagePath: "/c/a.jpg"})
	testsupport.ForceState(t, f.store, "cover-1", func(rec *records.Record) { rec.Status = records.StatusRunning })

	if _, err := f.service.MarkReview(context.Background(), "cover-1", "bad"); !errors.Is(err, workflow.ErrRecordBusy) {
		t.Fatalf("expected ErrRecordBusy, got %v", err)
	}
}

func TestReviewActionsShareEngineLock(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	f := newFixture(t, map[string]stage.Handler{
		"extraction": stage.HandlerFunc(func(context.Context, records.Attributes) (records.Attributes, error) {
			close(started)
			<-unblock
			return records.Attributes{records.AttrTitle: "Alien", records.AttrTeam: ""}, nil
		}),
	})
	testsupport.NewRecord(t, f.store, "cover-1", "extraction", records.Attributes{records.AttrImagePath: "/c/a.jpg"})

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.Run(context.Background(), "cover-1", "")
		done <- err
	}()
	<-started
	if _, err := f.service.MarkReview(context.Background(), "cover-1", "x"); !errors.Is(err, workflow.ErrRecordBusy) {
		t.Fatalf("expected ErrRecordBusy during run, got %v", err)
	}
	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}
	events, err := f.store.Events(context.Background(), "cover-1")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	for _, ev := range events {
		if ev.Type == records.EventMarkReview {
			t.Fatal("mark_review must not be recorded while busy")
		}
	}
}

func TestEditOverridesAttributesInPlace(t *testing.T) {
	f := newFixture(t, map[string]stage.Handler{
		"imdb": stage.HandlerFunc(func(context.Context, records.Attributes) (records.Attributes, error) {
			return nil, stage.Permanent("no results", nil)
		}),
	})
	testsupport.NewRecord(t, f.store, "cover-1", "extraction", records.Attributes{records.AttrImagePath: "/c/a.jpg"})
	if _, err := f.engine.Run(context.Background(), "cover-1", ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	escalate(t, f, "cover-1")

	rec, err := f.service.Edit(context.Background(), "cover-1", records.Attributes{records.AttrTitle: "Alien", records.AttrTeam: "Ridley Scott"})
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if rec.CurrentStage != "imdb" || rec.Status != records.StatusReview || rec.AttemptsFor("imdb") != 1 {
		t.Fatalf("edit moved the record: %+v", rec)
	}
	if rec.Attributes[records.AttrTeam] != "Ridley Scott" || rec.Attributes[records.AttrImagePath] != "/c/a.jpg" {
		t.Fatalf("unexpected attributes: %v", rec.Attributes)
	}
	events, err := f.store.Events(context.Background(), "cover-1")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if last := events[len(events)-1]; last.Type != records.EventEdited || last.Stage != "imdb" {
		t.Fatalf("unexpected last event: %+v", last)
	}
}

func TestEditRejectsInvalidChanges(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.NewRecord(t, f.store, "cover-1", "extraction", records.Attributes{records.AttrImagePath: "/c/a.jpg"})

	if _, err := f.service.Edit(context.Background(), "cover-1", nil); !errors.Is(err, review.ErrInvalidEdit) {
		t.Fatalf("expected ErrInvalidEdit for empty edit, got %v", err)
	}
	if _, err := f.service.Edit(context.Background(), "cover-1", records.Attributes{records.AttrImagePath: "/x.jpg"}); !errors.Is(err, review.ErrInvalidEdit) {
		t.Fatalf("expected ErrInvalidEdit for an input attribute, got %v", err)
	}
	if _, err := f.service.Edit(context.Background(), "missing", records.Attributes{records.AttrTitle: "x"}); !errors.Is(err, workflow.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	testsupport.ForceState(t, f.store, "cover-1", func(rec *records.Record) { rec.Status = records.StatusRunning })
	if _, err := f.service.Edit(context.Background(), "cover-1", records.Attributes{records.AttrTitle: "x"}); !errors.Is(err, workflow.ErrRecordBusy) {
		t.Fatalf("expected ErrRecordBusy, got %v", err)
	}
}

func TestListFiltersAndValidatesStages(t *testing.T) {
	f := newFixture(t, nil)
	testsupport.NewRecord(t, f.store, "cover-1", "extraction", records.Attributes{records.AttrImagePath: "/c/a.jpg"})
	testsupport.NewRecord(t, f.store, "cover-2", "extraction", records.Attributes{records.AttrImagePath: "/c/b.jpg"})
	if _, err := f.engine.Run(context.Background(), "cover-2", ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	recs, err := f.service.List(context.Background(), records.Filter{Stages: []string{"imdb"}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "cover-2" {
		t.Fatalf("unexpected listing: %v", recs)
	}
	if recs, err = f.service.List(context.Background(), records.Filter{Stages: []string{records.StageDone}}); err != nil || len(recs) != 0 {
		t.Fatalf("done filter: %v %v", recs, err)
	}
	if _, err := f.service.List(context.Background(), records.Filter{Stages: []string{"nope"}}); !errors.Is(err, workflow.ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
}
