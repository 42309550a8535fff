package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cardpress/internal/config"
)

const userAgent = "Cardpress-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyCardDetected(ctx context.Context, cardName, sourcePath string) error
	NotifyPrintCompleted(ctx context.Context, cardName string) error
	NotifyQuarantined(ctx context.Context, cardName, reason string) error
	NotifyQueueDrained(ctx context.Context, completed, failed int) error
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

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		completed:   cfg.Notifications.Completed,
		quarantined: cfg.Notifications.Quarantined,
		drained:     cfg.Notifications.QueueDrained,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	completed   bool
	quarantined bool
	drained     bool
	errors      bool
}

func (n *ntfyService) NotifyCardDetected(ctx context.Context, cardName, sourcePath string) error {
	cardName = strings.TrimSpace(cardName)
	data := payload{
		title:   "Cardpress - Card Detected",
		message: fmt.Sprintf("🃏 New card detected: %s", cardName),
		tags:    []string{"cardpress", "intake", "detected"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPrintCompleted(ctx context.Context, cardName string) error {
	if !n.completed {
		return nil
	}
	cardName = strings.TrimSpace(cardName)
	data := payload{
		title:   "Cardpress - Print Complete",
		message: fmt.Sprintf("🖨️ Printed: %s", cardName),
		tags:    []string{"cardpress", "print", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQuarantined(ctx context.Context, cardName, reason string) error {
	if !n.quarantined {
		return nil
	}
	cardName = strings.TrimSpace(cardName)
	message := fmt.Sprintf("⚠️ Quarantined: %s", cardName)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\nReason: %s", message, reason)
	}
	data := payload{
		title:    "Cardpress - Quarantined",
		message:  message,
		tags:     []string{"cardpress", "quarantine", "review"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, completed, failed int) error {
	if !n.drained {
		return nil
	}
	var title, message string
	if failed == 0 {
		title = "Cardpress - Queue Drained"
		message = fmt.Sprintf("Queue drained: %d cards printed", completed)
	} else {
		title = "Cardpress - Queue Drained (with errors)"
		message = fmt.Sprintf("Queue drained: %d printed, %d failed", completed, failed)
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"cardpress", "queue", "drained"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
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
		title:    "Cardpress - Error",
		message:  builder.String(),
		tags:     []string{"cardpress", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Cardpress - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"cardpress", "test"},
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

func (noopService) NotifyCardDetected(context.Context, string, string) error { return nil }
func (noopService) NotifyPrintCompleted(context.Context, string) error       { return nil }
func (noopService) NotifyQuarantined(context.Context, string, string) error  { return nil }
func (noopService) NotifyQueueDrained(context.Context, int, int) error       { return nil }
func (noopService) NotifyError(context.Context, error, string) error         { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
