package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scrobbled/internal/config"
)

const userAgent = "scrobbled/0.1.0"

// Service defines the notification surface exposed to the scrobbler
// and delivery components.
type Service interface {
	NotifyScrobbled(ctx context.Context, artist, track string) error
	NotifyAbandoned(ctx context.Context, artist, track string, retries int) error
	NotifyQueuePaused(ctx context.Context, queued int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

// NewNop returns a notification service that discards everything.
func NewNop() Service {
	return noopService{}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyScrobbled(ctx context.Context, artist, track string) error {
	data := payload{
		title:   "Scrobbled - Listen Delivered",
		message: fmt.Sprintf("Scrobbled: %s - %s", strings.TrimSpace(artist), strings.TrimSpace(track)),
		tags:    []string{"scrobbled", "listen", "delivered"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyAbandoned(ctx context.Context, artist, track string, retries int) error {
	data := payload{
		title:    "Scrobbled - Listen Dropped",
		message:  fmt.Sprintf("Gave up on: %s - %s after %d attempts", strings.TrimSpace(artist), strings.TrimSpace(track), retries),
		tags:     []string{"scrobbled", "listen", "dropped"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueuePaused(ctx context.Context, queued int) error {
	data := payload{
		title:   "Scrobbled - Delivery Paused",
		message: fmt.Sprintf("Delivery paused with %d queued listens: no ListenBrainz token configured", queued),
		tags:    []string{"scrobbled", "queue", "paused"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Scrobbled - Error",
		message:  builder.String(),
		tags:     []string{"scrobbled", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Scrobbled - Test",
		message:  "Notification system test",
		tags:     []string{"scrobbled", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

type noopService struct{}

func (noopService) NotifyScrobbled(context.Context, string, string) error      { return nil }
func (noopService) NotifyAbandoned(context.Context, string, string, int) error { return nil }
func (noopService) NotifyQueuePaused(context.Context, int) error               { return nil }
func (noopService) NotifyError(context.Context, error, string) error           { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
