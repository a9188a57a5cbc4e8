package stages_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"covercat/internal/config"
	"covercat/internal/logging"
	"covercat/internal/records"
	"covercat/internal/services"
	"covercat/internal/services/imdb"
	"covercat/internal/services/ollama"
	"covercat/internal/services/omdb"
	"covercat/internal/stage"
	"covercat/internal/stages"
	"covercat/internal/testsupport"
	"covercat/internal/workflow"
)

type fakeChat struct {
	mu      sync.Mutex
	answers map[string]string
	err     error
	calls   []ollama.Message
	missing []string
}

func (f *fakeChat) Chat(_ context.Context, model string, messages []ollama.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages...)
	if f.err != nil {
		return "", f.err
	}
	return f.answers[model], nil
}

func (f *fakeChat) CheckModels(_ context.Context, models ...string) error {
	for _, m := range models {
		for _, missing := range f.missing {
			if m == missing {
				return services.Wrap(services.ErrConfiguration, "ollama", "models", "not installed: "+m, nil)
			}
		}
	}
	return nil
}

type fakeIMDb struct {
	terms  []string
	match  imdb.Match
	err    error
	titles map[string]string
}

func (f *fakeIMDb) Find(_ context.Context, terms []string) (imdb.Match, error) {
	f.terms = terms
	if f.err != nil {
		return imdb.Match{}, f.err
	}
	return f.match, nil
}

func (f *fakeIMDb) FetchTitleES(_ context.Context, pageURL string) (string, error) {
	title, ok := f.titles[pageURL]
	if !ok {
		return "", services.Wrap(services.ErrNotFound, "imdb", "title", pageURL, nil)
	}
	return title, nil
}

type fakeOMDb struct {
	movie omdb.Movie
	err   error
}

func (f *fakeOMDb) ByID(_ context.Context, id string) (omdb.Movie, error) {
	if f.err != nil {
		return omdb.Movie{}, f.err
	}
	m := f.movie
	m.IMDbID = id
	raw, _ := json.Marshal(m)
	m.Raw = raw
	return m, nil
}

func newClients(cfg *config.Config) (stages.Clients, *fakeChat, *fakeIMDb, *fakeOMDb) {
	chat := &fakeChat{answers: map[string]string{
		cfg.Ollama.TitleModel:       `"Alien"`,
		cfg.Ollama.TeamModel:        "Ridley Scott, Sigourney Weaver\nTom Skerritt",
		cfg.Ollama.TranslationModel: "La tripulacion de una nave comercial...",
	}}
	finder := &fakeIMDb{
		match:  imdb.Match{ID: "tt0078748", URL: imdb.TitleURL("tt0078748")},
		titles: map[string]string{imdb.TitleURL("tt0078748"): "Alien, el octavo pasajero"},
	}
	lookup := &fakeOMDb{movie: omdb.Movie{Title: "Alien", Plot: "The crew of a commercial spacecraft...", Response: "True"}}
	return stages.Clients{Chat: chat, IMDb: finder, OMDb: lookup}, chat, finder, lookup
}

func handler(t *testing.T, reg *stage.Registry, name string) stage.Handler {
	t.Helper()
	desc, ok := reg.Lookup(name)
	if !ok {
		t.Fatalf("stage %s not registered", name)
	}
	return desc.Handler
}

func TestBuildRegistersPipelineInOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStageDelay(stages.OMDb, 2500))
	rateLimited := false
	cfg.Stages[stages.TitleES] = config.StageSettings{RateLimited: &rateLimited, MaxAttempts: 5}
	clients, _, _, _ := newClients(cfg)

	reg, err := stages.Build(cfg, clients)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := []string{"extraction", "imdb", "title_es", "omdb", "translation"}
	if got := strings.Join(reg.Names(), ","); got != strings.Join(want, ",") {
		t.Fatalf("stage order = %s", got)
	}

	checks := []struct {
		name        string
		rateLimited bool
		delay       time.Duration
		maxAttempts int
	}{
		{"extraction", false, 0, 3},
		{"imdb", true, time.Second, 3},
		{"title_es", false, 0, 5},
		{"omdb", true, 2500 * time.Millisecond, 3},
		{"translation", false, 0, 3},
	}
	for _, c := range checks {
		desc, _ := reg.Lookup(c.name)
		if desc.RateLimited != c.rateLimited || desc.Delay != c.delay || desc.MaxAttempts != c.maxAttempts {
			t.Fatalf("%s: unexpected descriptor %+v", c.name, desc)
		}
		if desc.Timeout != 120*time.Second {
			t.Fatalf("%s: timeout = %s", c.name, desc.Timeout)
		}
	}
}

func TestExtractionReadsTitleAndTeam(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clients, chat, _, _ := newClients(cfg)
	reg, err := stages.Build(cfg, clients)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	cover := filepath.Join(cfg.Paths.CoversDir, "alien.png")
	testsupport.WriteCoverImage(t, cover, 2000, 3000)

	got, err := handler(t, reg, stages.Extraction).Execute(context.Background(), records.Attributes{records.AttrImagePath: cover})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got[records.AttrTitle] != "Alien" || got[records.AttrTeam] != "Ridley Scott;Sigourney Weaver;Tom Skerritt" {
		t.Fatalf("unexpected attributes %v", got)
	}
	if len(chat.calls) != 2 || len(chat.calls[0].Images) != 1 || chat.calls[0].Images[0] == "" {
		t.Fatalf("expected two vision prompts with the cover attached, got %+v", chat.calls)
	}
}

func TestExtractionUnidentifiedCover(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clients, chat, _, _ := newClients(cfg)
	reg, _ := stages.Build(cfg, clients)
	cover := filepath.Join(cfg.Paths.CoversDir, "blank.jpg")
	testsupport.WriteCoverImage(t, cover, 300, 400)
	extraction := handler(t, reg, stages.Extraction)

	chat.answers[cfg.Ollama.TitleModel] = "NO IDENTIFICADO."
	got, err := extraction.Execute(context.Background(), records.Attributes{records.AttrImagePath: cover})
	if err != nil {
		t.Fatalf("expected team-only extraction to succeed: %v", err)
	}
	if v, ok := got[records.AttrTitle]; !ok || v != "" {
		t.Fatalf("expected empty title attribute, got %v", got)
	}

	chat.answers[cfg.Ollama.TeamModel] = ""
	_, err = extraction.Execute(context.Background(), records.Attributes{records.AttrImagePath: cover})
	if f := stage.Classify(err); f == nil || f.Kind != stage.FailurePermanent {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestExtractionMissingFileIsPermanent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clients, _, _, _ := newClients(cfg)
	reg, _ := stages.Build(cfg, clients)

	_, err := handler(t, reg, stages.Extraction).Execute(context.Background(), records.Attributes{records.AttrImagePath: "/nope/cover.jpg"})
	if f := stage.Classify(err); f == nil || f.Kind != stage.FailurePermanent {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestParseTitleAndTeam(t *testing.T) {
	tests := []struct {
		answer     string
		title      string
		identified bool
	}{
		{`  "Alien"  `, "Alien", true},
		{"NO IDENTIFICADO", "", false},
		{"no identificado.", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		title, identified := stages.ParseTitle(tt.answer)
		if title != tt.title || identified != tt.identified {
			t.Fatalf("ParseTitle(%q) = %q, %v", tt.answer, title, identified)
		}
	}
	team := stages.ParseTeam("Ridley Scott,\n Ridley Scott, \"John Hurt\".\n\n")
	if strings.Join(team, "|") != "Ridley Scott|John Hurt" {
		t.Fatalf("ParseTeam = %v", team)
	}
}

func TestIMDbStageBuildsTermsFromTitleAndTeam(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clients, _, finder, _ := newClients(cfg)
	reg, _ := stages.Build(cfg, clients)

	got, err := handler(t, reg, stages.IMDb).Execute(context.Background(), records.Attributes{
		records.AttrTitle: "Alien",
		records.AttrTeam:  "Ridley Scott;Sigourney Weaver",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got[records.AttrIMDbID] != "tt0078748" || got[records.AttrIMDbURL] != "https://www.imdb.com/title/tt0078748/" {
		t.Fatalf("unexpected attributes %v", got)
	}
	if len(finder.terms) == 0 || finder.terms[0] != "Alien Ridley Scott Sigourney Weaver" {
		t.Fatalf("unexpected terms %v", finder.terms)
	}

	finder.err = services.Wrap(services.ErrNotFound, "imdb", "find", "no match", nil)
	_, err = handler(t, reg, stages.IMDb).Execute(context.Background(), records.Attributes{records.AttrTitle: "", records.AttrTeam: "Nobody"})
	if f := stage.Classify(err); f.Kind != stage.FailurePermanent {
		t.Fatalf("expected permanent not-found, got %v", err)
	}
}

func TestTitleESJoinsMultipleURLs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clients, _, finder, _ := newClients(cfg)
	finder.titles[imdb.TitleURL("tt0090605")] = "Aliens, el regreso"
	reg, _ := stages.Build(cfg, clients)

	urls := imdb.TitleURL("tt0078748") + ";" + imdb.TitleURL("tt0090605")
	got, err := handler(t, reg, stages.TitleES).Execute(context.Background(), records.Attributes{records.AttrIMDbURL: urls})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got[records.AttrTitleES] != "Alien, el octavo pasajero;Aliens, el regreso" {
		t.Fatalf("unexpected title_es %q", got[records.AttrTitleES])
	}
}

func TestOMDbStageStoresPayloadAndPlot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clients, _, _, lookup := newClients(cfg)
	reg, _ := stages.Build(cfg, clients)

	got, err := handler(t, reg, stages.OMDb).Execute(context.Background(), records.Attributes{records.AttrIMDbID: "tt0078748"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got[records.AttrPlotEN] == "" || !strings.Contains(got[records.AttrOMDbJSON], `"imdbID":"tt0078748"`) {
		t.Fatalf("unexpected attributes %v", got)
	}

	lookup.err = services.Wrap(services.ErrTransient, "omdb", "lookup", "Request limit reached!", nil)
	_, err = handler(t, reg, stages.OMDb).Execute(context.Background(), records.Attributes{records.AttrIMDbID: "tt0078748"})
	if f := stage.Classify(err); f.Kind != stage.FailureTransient {
		t.Fatalf("expected transient failure, got %v", err)
	}
}

func TestTranslationSkipsEmptyPlot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clients, chat, _, _ := newClients(cfg)
	reg, _ := stages.Build(cfg, clients)
	translation := handler(t, reg, stages.Translation)

	got, err := translation.Execute(context.Background(), records.Attributes{records.AttrPlotEN: "  "})
	if err != nil || got[records.AttrPlotES] != "" || len(chat.calls) != 0 {
		t.Fatalf("expected empty plot_es without a model call, got %v, %v, calls=%d", got, err, len(chat.calls))
	}

	got, err = translation.Execute(context.Background(), records.Attributes{records.AttrPlotEN: "In space."})
	if err != nil || got[records.AttrPlotES] == "" {
		t.Fatalf("unexpected translation %v, %v", got, err)
	}
	if chat.calls[0].Role != "system" || chat.calls[1].Content != "In space." {
		t.Fatalf("unexpected messages %+v", chat.calls)
	}
}

func TestHealthChecksReportMissingModels(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clients, chat, _, _ := newClients(cfg)
	chat.missing = []string{cfg.Ollama.TranslationModel}
	reg, _ := stages.Build(cfg, clients)

	for _, h := range reg.CheckAll(context.Background()) {
		wantReady := h.Name != stages.Translation
		if h.Ready != wantReady {
			t.Fatalf("%s: ready=%v detail=%q", h.Name, h.Ready, h.Detail)
		}
	}
}

func TestPipelineRunsCoverToDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clients, _, _, _ := newClients(cfg)
	reg, err := stages.Build(cfg, clients)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	cover := filepath.Join(cfg.Paths.CoversDir, "alien.jpg")
	testsupport.WriteCoverImage(t, cover, 600, 900)
	testsupport.NewRecord(t, store, "alien", reg.First(), records.Attributes{records.AttrImagePath: cover})

	engine := workflow.NewEngine(cfg, store, reg, logging.NewNop())
	for i := 0; i < reg.Len(); i++ {
		out, err := engine.Run(context.Background(), "alien", "")
		if err != nil || out.Escalated() || out.FailureKind != "" {
			t.Fatalf("run %d: outcome %+v err %v", i, out, err)
		}
	}
	rec := testsupport.MustGet(t, store, "alien")
	if !rec.IsDone() || rec.Attributes[records.AttrTitleES] != "Alien, el octavo pasajero" || rec.Attributes[records.AttrPlotES] == "" {
		t.Fatalf("unexpected final record %+v", rec)
	}

	out, err := engine.Run(context.Background(), "alien", "")
	if err != nil || !out.Noop {
		t.Fatalf("expected noop on done record, got %+v, %v", out, err)
	}
}

func TestOMDbMissingKeyEscalatesImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOMDbKey(""))
	clients, _, _, _ := newClients(cfg)
	clients.OMDb = omdb.NewClient(omdb.Config{})
	reg, _ := stages.Build(cfg, clients)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewRecord(t, store, "alien", stages.OMDb, records.Attributes{records.AttrIMDbID: "tt0078748"})

	engine := workflow.NewEngine(cfg, store, reg, logging.NewNop())
	out, err := engine.Run(context.Background(), "alien", "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Escalated() || out.FailureKind != stage.FailurePermanent {
		t.Fatalf("expected permanent escalation, got %+v", out)
	}
	if rec := testsupport.MustGet(t, store, "alien"); rec.Status != records.StatusReview || rec.AttemptsFor(stages.OMDb) != 1 {
		t.Fatalf("expected review after one attempt, got %s attempts=%d", rec.Status, rec.AttemptsFor(stages.OMDb))
	}
}
