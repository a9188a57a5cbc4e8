// Package omdb fetches movie metadata from the OMDb API by IMDb id.
package omdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"covercat/internal/services"
)

const (
	defaultBaseURL     = "https://www.omdbapi.com/"
	defaultHTTPTimeout = 20 * time.Second
)

// Config captures the API settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Plot           string
	TimeoutSeconds int
}

// Movie holds the OMDb fields covercat reads plus the raw payload.
type Movie struct {
	Title    string `json:"Title"`
	Year     string `json:"Year"`
	Director string `json:"Director"`
	Actors   string `json:"Actors"`
	Plot     string `json:"Plot"`
	IMDbID   string `json:"imdbID"`
	Response string `json:"Response"`
	Error    string `json:"Error"`

	Raw json.RawMessage `json:"-"`
}

// PlotText returns the plot, treating OMDb's "N/A" placeholder as empty.
func (m Movie) PlotText() string {
	plot := strings.TrimSpace(m.Plot)
	if strings.EqualFold(plot, "N/A") {
		return ""
	}
	return plot
}

// Client queries OMDb.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an OMDb client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Plot == "" {
		cfg.Plot = "full"
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// ByID looks up a movie by IMDb id.
func (c *Client) ByID(ctx context.Context, imdbID string) (Movie, error) {
	if !c.Configured() {
		return Movie{}, services.Wrap(services.ErrConfiguration, "omdb", "lookup", "api key not configured (set omdb.api_key or OMDB_API_KEY)", nil)
	}
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return Movie{}, services.Wrap(services.ErrValidation, "omdb", "lookup", "imdb id required", nil)
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return Movie{}, services.Wrap(services.ErrConfiguration, "omdb", "lookup", "invalid base url", err)
	}
	params := base.Query()
	params.Set("i", imdbID)
	params.Set("apikey", c.cfg.APIKey)
	params.Set("plot", c.cfg.Plot)
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return Movie{}, fmt.Errorf("omdb request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Movie{}, ctx.Err()
		}
		return Movie{}, services.Wrap(services.ErrTransient, "omdb", "lookup", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Movie{}, services.Wrap(services.ErrTransient, "omdb", "lookup", "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Movie{}, services.Wrap(services.MarkerForStatus(resp.StatusCode), "omdb", "lookup", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var movie Movie
	if err := json.Unmarshal(body, &movie); err != nil {
		return Movie{}, services.Wrap(services.ErrExternalTool, "omdb", "lookup", "decode response", err)
	}
	if movie.Response != "True" {
		msg := strings.TrimSpace(movie.Error)
		if msg == "" {
			msg = "unknown error"
		}
		return Movie{}, services.Wrap(markerForMessage(msg), "omdb", "lookup", msg, nil)
	}
	movie.Raw = json.RawMessage(body)
	return movie, nil
}

func markerForMessage(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "api key"):
		return services.ErrConfiguration
	case strings.Contains(lower, "not found"), strings.Contains(lower, "incorrect imdb id"):
		return services.ErrNotFound
	case strings.Contains(lower, "limit"):
		return services.ErrTransient
	default:
		return services.ErrExternalTool
	}
}
