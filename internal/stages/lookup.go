package stages

import (
	"context"
	"strings"

	"covercat/internal/records"
	"covercat/internal/services/imdb"
	"covercat/internal/stage"
	"covercat/internal/textutil"
)

type imdbHandler struct {
	finder TitleFinder
}

func (h *imdbHandler) Execute(ctx context.Context, attrs records.Attributes) (records.Attributes, error) {
	title := strings.TrimSpace(attrs[records.AttrTitle])
	team := textutil.SplitValues(attrs[records.AttrTeam])
	terms := imdb.BuildSearchTerms(title, title != "", team)
	match, err := h.finder.Find(ctx, terms)
	if err != nil {
		return nil, err
	}
	return records.Attributes{
		records.AttrIMDbURL: match.URL,
		records.AttrIMDbID:  match.ID,
	}, nil
}

type titleESHandler struct {
	finder TitleFinder
}

func (h *titleESHandler) Execute(ctx context.Context, attrs records.Attributes) (records.Attributes, error) {
	urls := textutil.SplitValues(attrs[records.AttrIMDbURL])
	if len(urls) == 0 {
		return nil, stage.Permanent("imdb_url is empty", nil)
	}
	titles := make([]string, 0, len(urls))
	for _, u := range urls {
		title, err := h.finder.FetchTitleES(ctx, u)
		if err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return records.Attributes{records.AttrTitleES: textutil.JoinValues(titles)}, nil
}

type omdbHandler struct {
	lookup MovieLookup
}

func (h *omdbHandler) Execute(ctx context.Context, attrs records.Attributes) (records.Attributes, error) {
	ids := textutil.SplitValues(attrs[records.AttrIMDbID])
	if len(ids) == 0 {
		return nil, stage.Permanent("imdb_id is empty", nil)
	}
	movie, err := h.lookup.ByID(ctx, ids[0])
	if err != nil {
		return nil, err
	}
	return records.Attributes{
		records.AttrOMDbJSON: string(movie.Raw),
		records.AttrPlotEN:   movie.PlotText(),
	}, nil
}
