// Package ollama talks to a local Ollama server's chat API for cover reading
// and plot translation.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"covercat/internal/services"
)

const defaultHTTPTimeout = 180 * time.Second

// Config captures the connection settings for the Ollama server.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
}

// Message is one chat turn. Images carry base64 encoded pictures.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Client wraps the /api/chat endpoint.
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

// NewClient constructs an Ollama client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = "http://127.0.0.1:11434"
	}
	return client
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// Chat sends a non-streaming chat request and returns the trimmed answer.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", services.Wrap(services.ErrConfiguration, "ollama", "chat", "model required", nil)
	}
	if len(messages) == 0 {
		return "", errors.New("ollama chat: at least one message required")
	}
	payload := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"temperature": 0},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ollama chat: encode body: %w", err)
	}
	var parsed chatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", bytes.NewReader(encoded), &parsed); err != nil {
		return "", err
	}
	if parsed.Error != "" {
		return "", services.Wrap(services.ErrExternalTool, "ollama", "chat", parsed.Error, nil)
	}
	return strings.TrimSpace(parsed.Message.Content), nil
}

// Models lists the model names installed on the server.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &parsed); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// CheckModels verifies every named model is installed.
func (c *Client) CheckModels(ctx context.Context, models ...string) error {
	installed, err := c.Models(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(installed))
	for _, name := range installed {
		have[name] = struct{}{}
	}
	var missing []string
	for _, model := range models {
		if _, ok := have[model]; !ok {
			missing = append(missing, model)
		}
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrConfiguration, "ollama", "models", "not installed: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return fmt.Errorf("ollama request: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("ollama request: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrTransient, "ollama", path, "http error", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "ollama", path, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg := fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return services.Wrap(services.MarkerForStatus(resp.StatusCode), "ollama", path, msg, nil)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return services.Wrap(services.ErrExternalTool, "ollama", path, "decode response", err)
	}
	return nil
}
