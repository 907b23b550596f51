package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/config"
)

// ChannelResult is the per-channel outcome of one dispatch.
type ChannelResult struct {
	Success   bool
	Error     string
	MessageID string
}

// Channel delivers an already-formatted alert. Implementations must not
// assume any other channel ran before or after them.
type Channel interface {
	Name() string
	Dispatch(ctx context.Context, a Alert, m Message) ChannelResult
}

// LogChannel writes the alert to the structured log, warn for high severity.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Dispatch(_ context.Context, a Alert, m Message) ChannelResult {
	attrs := []any{
		slog.String("type", "alert"),
		slog.Int64("product_id", a.ProductID),
		slog.String("site", a.Site),
		slog.String("direction", a.Direction),
		slog.String("severity", a.Severity),
		slog.String("old_price", a.OldPrice.StringFixed(2)),
		slog.String("new_price", a.NewPrice.StringFixed(2)),
		slog.String("url", a.ProductURL),
	}
	if a.Severity == "high" {
		slog.Warn(m.Subject, attrs...)
	} else {
		slog.Info(m.Subject, attrs...)
	}
	return ChannelResult{Success: true}
}

// WebhookChannel POSTs the payload to a Slack-compatible endpoint; any 2xx
// response counts as delivered.
type WebhookChannel struct {
	URL    string
	client *http.Client
}

func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		URL:    url,
		client: &http.Client{Timeout: config.WebhookTimeout},
	}
}

func (*WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Dispatch(ctx context.Context, _ Alert, m Message) ChannelResult {
	if c.URL == "" {
		return ChannelResult{Error: "webhook URL not configured"}
	}

	body, err := json.Marshal(m.Webhook)
	if err != nil {
		return ChannelResult{Error: fmt.Sprintf("encode payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return ChannelResult{Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ChannelResult{Error: fmt.Sprintf("post webhook: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ChannelResult{Error: fmt.Sprintf("Webhook returned %d", resp.StatusCode)}
	}
	return ChannelResult{Success: true, MessageID: resp.Header.Get("X-Message-Id")}
}

// EmailChannel delegates to an EmailSender capability.
type EmailChannel struct {
	sender     EmailSender
	recipients []string
}

func NewEmailChannel(sender EmailSender, recipients []string) *EmailChannel {
	return &EmailChannel{sender: sender, recipients: recipients}
}

func (*EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Dispatch(ctx context.Context, _ Alert, m Message) ChannelResult {
	if c.sender == nil {
		return ChannelResult{Error: "email sender not configured"}
	}
	if len(c.recipients) == 0 {
		return ChannelResult{Error: "no email recipients configured"}
	}

	res := c.sender.Send(ctx, EmailMessage{
		To:      c.recipients,
		Subject: m.Subject,
		Text:    m.Text,
		HTML:    m.HTML,
	})
	return ChannelResult{Success: res.Success, Error: res.Error, MessageID: res.MessageID}
}

// sendTimeout bounds one channel dispatch so a slow channel cannot eat the
// whole cycle.
const sendTimeout = 30 * time.Second
