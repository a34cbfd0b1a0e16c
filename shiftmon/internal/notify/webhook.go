package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/alert"
)

// Webhook posts alerts to a Slack, Teams or generic JSON endpoint.
type Webhook struct {
	name   string
	kind   string
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhook returns a webhook action. kind is slack, teams or webhook.
func NewWebhook(name, kind, url string) *Webhook {
	return &Webhook{
		name:   name,
		kind:   kind,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (w *Webhook) Name() string { return w.name }

func (w *Webhook) Notify(ctx context.Context, a alert.Alert) error {
	var payload any
	switch w.kind {
	case "slack":
		text := fmt.Sprintf("*%s* %s", levelLabel(a.Level()), a.Message())
		if d := a.Details(); d != "" {
			text += "\n```" + d + "```"
		}
		payload = map[string]string{"text": text}
	case "teams":
		payload = map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": levelColor(a.Level()),
			"summary":    a.Name(),
			"title":      fmt.Sprintf("RateMon Alert: %s", a.Message()),
			"text":       a.Details(),
		}
	default:
		payload = map[string]any{"alert": NewEvent(a, w.now())}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return w.post(ctx, body)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func levelLabel(l alert.Level) string {
	switch l {
	case alert.LevelCritical:
		return "[CRITICAL]"
	case alert.LevelError:
		return "[ERROR]"
	case alert.LevelWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func levelColor(l alert.Level) string {
	switch l {
	case alert.LevelCritical, alert.LevelError:
		return "FF4F6A"
	case alert.LevelWarning:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
