package stages

import (
	"context"

	"covercat/internal/config"
	"covercat/internal/coverimage"
	"covercat/internal/records"
	"covercat/internal/services/imdb"
	"covercat/internal/services/ollama"
	"covercat/internal/services/omdb"
	"covercat/internal/stage"
)

// Stage names in pipeline order.
const (
	Extraction  = "extraction"
	IMDb        = "imdb"
	TitleES     = "title_es"
	OMDb        = "omdb"
	Translation = "translation"
)

// Chatter sends chat requests to a language model.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message) (string, error)
}

// ModelChecker reports whether models are installed.
type ModelChecker interface {
	CheckModels(ctx context.Context, models ...string) error
}

// TitleFinder searches IMDb and scrapes localized titles.
type TitleFinder interface {
	Find(ctx context.Context, terms []string) (imdb.Match, error)
	FetchTitleES(ctx context.Context, pageURL string) (string, error)
}

// MovieLookup fetches OMDb metadata by IMDb id.
type MovieLookup interface {
	ByID(ctx context.Context, imdbID string) (omdb.Movie, error)
}

// Clients bundles the remote collaborators the handlers call.
type Clients struct {
	Chat  Chatter
	IMDb  TitleFinder
	OMDb  MovieLookup
	Cover coverimage.Options
}

// NewClients builds the production clients from configuration.
func NewClients(cfg *config.Config) Clients {
	return Clients{
		Chat: ollama.NewClient(ollama.Config{
			BaseURL:        cfg.Ollama.BaseURL,
			TimeoutSeconds: cfg.Ollama.TimeoutSeconds,
		}),
		IMDb: imdb.NewClient(imdb.Config{
			BaseURL:        cfg.IMDb.BaseURL,
			UserAgent:      cfg.IMDb.UserAgent,
			MaxResults:     cfg.IMDb.MaxResults,
			TimeoutSeconds: cfg.IMDb.TimeoutSeconds,
		}),
		OMDb: omdb.NewClient(omdb.Config{
			APIKey:         cfg.OMDb.APIKey,
			BaseURL:        cfg.OMDb.BaseURL,
			Plot:           cfg.OMDb.Plot,
			TimeoutSeconds: cfg.OMDb.TimeoutSeconds,
		}),
		Cover: coverimage.Options{
			MaxDimension: cfg.Cover.MaxDimension,
			Quality:      cfg.Cover.JPEGQuality,
		},
	}
}

// Build assembles the pipeline registry. Per-stage timeout, attempt limit,
// and pacing come from configuration; the remote-scraping stages are rate
// limited unless configuration says otherwise.
func Build(cfg *config.Config, clients Clients) (*stage.Registry, error) {
	descs := []stage.Descriptor{
		{
			Name:           Extraction,
			Handler:        &extractionHandler{chat: clients.Chat, titleModel: cfg.Ollama.TitleModel, teamModel: cfg.Ollama.TeamModel, cover: clients.Cover},
			InputsRequired: []string{records.AttrImagePath},
			Produces:       []string{records.AttrTitle, records.AttrTeam},
		},
		{
			Name:           IMDb,
			Handler:        &imdbHandler{finder: clients.IMDb},
			InputsRequired: []string{records.AttrTitle, records.AttrTeam},
			Produces:       []string{records.AttrIMDbURL, records.AttrIMDbID},
			RateLimited:    true,
		},
		{
			Name:           TitleES,
			Handler:        &titleESHandler{finder: clients.IMDb},
			InputsRequired: []string{records.AttrIMDbURL},
			Produces:       []string{records.AttrTitleES},
			RateLimited:    true,
		},
		{
			Name:           OMDb,
			Handler:        &omdbHandler{lookup: clients.OMDb},
			InputsRequired: []string{records.AttrIMDbID},
			Produces:       []string{records.AttrOMDbJSON, records.AttrPlotEN},
			RateLimited:    true,
		},
		{
			Name:           Translation,
			Handler:        &translationHandler{chat: clients.Chat, model: cfg.Ollama.TranslationModel},
			InputsRequired: []string{records.AttrPlotEN},
			Produces:       []string{records.AttrPlotES},
		},
	}
	for i := range descs {
		name := descs[i].Name
		descs[i].Timeout = cfg.StageTimeout(name)
		descs[i].MaxAttempts = cfg.StageMaxAttempts(name)
		descs[i].RateLimited = cfg.StageRateLimited(name, descs[i].RateLimited)
		if descs[i].RateLimited {
			descs[i].Delay = cfg.StageDelay(name)
		}
	}
	return stage.NewRegistry(descs...)
}
