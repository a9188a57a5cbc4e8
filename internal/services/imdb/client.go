// Package imdb searches the IMDb find page for feature films and scrapes
// localized titles from title pages.
package imdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"covercat/internal/services"
	"covercat/internal/textutil"
)

const (
	defaultBaseURL     = "https://www.imdb.com"
	defaultHTTPTimeout = 20 * time.Second
	defaultMaxResults  = 10

	// Languages sent with search and title requests.
	LanguageEnglish = "en-US,en;q=0.9"
	LanguageSpanish = "es-ES,es;q=0.9"
)

var (
	titleIDPattern = regexp.MustCompile(`(?i)/title/(tt\d{7,8})\b`)
	yearSuffix     = regexp.MustCompile(`\s*\(\d{4}\)$`)
)

// ErrNoSearchTerms reports that neither a title nor a team was available.
var ErrNoSearchTerms = errors.New("not enough metadata to search")

// Config captures the scraping settings.
type Config struct {
	BaseURL        string
	UserAgent      string
	MaxResults     int
	TimeoutSeconds int
}

// Client performs IMDb HTTP requests.
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

// NewClient constructs an IMDb client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
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

// Match is the chosen search hit.
type Match struct {
	ID   string
	URL  string
	Term string
}

// TitleURL returns the canonical title page URL for id.
func TitleURL(id string) string {
	return defaultBaseURL + "/title/" + strings.ToLower(strings.TrimSpace(id)) + "/"
}

// Find tries each term in order and returns the first candidate of the
// first term that yields any.
func (c *Client) Find(ctx context.Context, terms []string) (Match, error) {
	if len(terms) == 0 {
		return Match{}, services.Wrap(services.ErrValidation, "imdb", "find", ErrNoSearchTerms.Error(), ErrNoSearchTerms)
	}
	for _, term := range terms {
		ids, err := c.Search(ctx, term)
		if err != nil {
			return Match{}, err
		}
		if len(ids) > 0 {
			return Match{ID: ids[0], URL: TitleURL(ids[0]), Term: term}, nil
		}
	}
	return Match{}, services.Wrap(services.ErrNotFound, "imdb", "find", fmt.Sprintf("no feature film matched %d search terms", len(terms)), nil)
}

// Search returns up to MaxResults title ids from the feature film find page.
func (c *Client) Search(ctx context.Context, term string) ([]string, error) {
	params := url.Values{}
	params.Set("q", term)
	params.Set("s", "tt")
	params.Set("ttype", "ft")
	params.Set("ref_", "fn_ft")
	body, err := c.get(ctx, c.cfg.BaseURL+"/find/?"+params.Encode(), LanguageEnglish)
	if err != nil {
		return nil, err
	}
	return ExtractTitleIDs(body, c.cfg.MaxResults), nil
}

// ExtractTitleIDs collects distinct lower-cased title ids in document order.
// Result links are read through goquery first; the raw body is scanned when
// the markup carries ids outside anchors.
func ExtractTitleIDs(body []byte, limit int) []string {
	if limit <= 0 {
		limit = defaultMaxResults
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, limit)
	add := func(raw string) bool {
		for _, m := range titleIDPattern.FindAllStringSubmatch(raw, -1) {
			id := strings.ToLower(m[1])
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			if len(ids) >= limit {
				return false
			}
		}
		return true
	}

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, _ := sel.Attr("href")
			return add(href)
		})
	}
	if len(ids) == 0 {
		add(string(body))
	}
	return ids
}

// FetchTitleES returns the Spanish title scraped from the title page at
// pageURL.
func (c *Client) FetchTitleES(ctx context.Context, pageURL string) (string, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return "", services.Wrap(services.ErrValidation, "imdb", "title", "empty url", nil)
	}
	body, err := c.get(ctx, c.rebase(pageURL), LanguageSpanish)
	if err != nil {
		return "", err
	}
	title, err := ParsePageTitle(body)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "imdb", "title", pageURL, err)
	}
	return title, nil
}

// ParsePageTitle extracts the film name from a title page's <title>.
func ParsePageTitle(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	raw := doc.Find("title").First().Text()
	if idx := strings.Index(raw, " - "); idx >= 0 {
		raw = raw[:idx]
	}
	raw = strings.TrimSpace(yearSuffix.ReplaceAllString(strings.TrimSpace(raw), ""))
	if raw == "" {
		return "", errors.New("page has no title")
	}
	return raw, nil
}

// rebase points canonical imdb.com URLs at the configured base so tests and
// mirrors can intercept title fetches.
func (c *Client) rebase(pageURL string) string {
	if c.cfg.BaseURL == defaultBaseURL {
		return pageURL
	}
	parsed, err := url.Parse(pageURL)
	if err != nil || !strings.HasSuffix(parsed.Host, "imdb.com") {
		return pageURL
	}
	return c.cfg.BaseURL + parsed.EscapedPath()
}

func (c *Client) get(ctx context.Context, endpoint, language string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("imdb request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("Accept-Language", language)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "imdb", "http", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "imdb", "http", "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.MarkerForStatus(resp.StatusCode), "imdb", "http", fmt.Sprintf("status %d for %s", resp.StatusCode, endpoint), nil)
	}
	return body, nil
}

// BuildSearchTerms orders the queries tried against the find page: title with
// lead team, bare title, their accent-folded variants, then the team alone.
// identified=false drops the title entirely.
func BuildSearchTerms(title string, identified bool, team []string) []string {
	title = textutil.CollapseSpaces(title)
	if !identified {
		title = ""
	}
	members := make([]string, 0, len(team))
	for _, m := range team {
		if m = textutil.CollapseSpaces(m); m != "" {
			members = append(members, m)
		}
	}
	lead := strings.Join(firstN(members, 2), " ")

	var terms []string
	if title != "" {
		terms = append(terms, joinNonEmpty(title, lead), title)
		folded := textutil.FoldAccents(title)
		if strings.ToLower(folded) != strings.ToLower(title) {
			terms = append(terms, joinNonEmpty(folded, lead), folded)
		}
	}
	if len(members) > 0 {
		terms = append(terms, strings.Join(firstN(members, 3), " "))
	}
	return textutil.DedupeKeepOrder(terms)
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
