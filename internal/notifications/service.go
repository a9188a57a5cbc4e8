package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"covercat/internal/config"
)

const userAgent = "covercat/0.1.0"

// Event names a workflow milestone that can be pushed.
type Event string

const (
	// EventRecordEscalated fires when a record moves into the review queue.
	EventRecordEscalated Event = "record_escalated"
	// EventBatchCompleted fires when a batch run finishes.
	EventBatchCompleted Event = "batch_completed"
	// EventTest is sent by `covercat notify-test`.
	EventTest Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

// format renders event, reporting false when the event is disabled or
// unknown.
func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRecordEscalated:
		if !n.settings.Review {
			return message{}, false
		}
		body := fmt.Sprintf("🔎 %s needs review at %s", payload.text("recordID"), payload.text("stage"))
		if reason := payload.text("reason"); reason != "" {
			body += "\n" + reason
		}
		return message{
			title: "covercat - Review Needed",
			body:  body,
			tags:  []string{"covercat", "review", payload.text("stage")},
		}, true

	case EventBatchCompleted:
		items := payload.number("items")
		if !n.settings.Batch || items < n.settings.BatchMinItems {
			return message{}, false
		}
		failed := payload.number("failed")
		escalated := payload.number("escalated")
		duration := payload.duration("duration")
		title := "covercat - Batch Complete"
		body := fmt.Sprintf("Batch complete: %d records in %s", items, duration)
		if failed > 0 || escalated > 0 {
			title = "covercat - Batch Complete (with problems)"
			body = fmt.Sprintf("Batch complete: %d records, %d errors, %d sent to review in %s", items, failed, escalated, duration)
		}
		if payload.flag("stopped") {
			body += " (stopped early)"
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"covercat", "batch", "completed"},
		}, true

	case EventTest:
		return message{
			title:    "covercat - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"covercat", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if tags := nonEmpty(msg.tags); len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) number(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) flag(key string) bool {
	v, _ := p[key].(bool)
	return v
}

func (p Payload) duration(key string) time.Duration {
	v, _ := p[key].(time.Duration)
	return v.Round(time.Second)
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
