package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SendResult is the outcome of one pipeline Send.
type SendResult struct {
	Sent     bool
	Reason   string
	Channels map[string]ChannelResult
}

type dedupKey struct {
	productID int64
	alertType string
}

// Pipeline dedups alerts per (product, alert type) and fans them out to the
// configured channels. One channel failing never cancels its siblings.
type Pipeline struct {
	cfg      Config
	channels []Channel

	mu       sync.Mutex
	lastSent map[dedupKey]time.Time
	now      func() time.Time
}

func NewPipeline(cfg Config, sender EmailSender) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		lastSent: make(map[dedupKey]time.Time),
		now:      time.Now,
	}

	for _, name := range cfg.Channels {
		switch name {
		case "log":
			p.channels = append(p.channels, LogChannel{})
		case "webhook":
			p.channels = append(p.channels, NewWebhookChannel(cfg.WebhookURL))
		case "email":
			p.channels = append(p.channels, NewEmailChannel(sender, cfg.EmailRecipients))
		default:
			slog.Warn("Unknown alert channel ignored",
				slog.String("type", "alert"),
				slog.String("channel", name))
		}
	}
	return p
}

// Send formats the alert once and dispatches it to every channel. The dedup
// entry is recorded whenever the fanout was attempted, regardless of
// per-channel success.
func (p *Pipeline) Send(ctx context.Context, a Alert) SendResult {
	if !p.cfg.Enabled {
		return SendResult{Reason: "alerts_disabled"}
	}

	key := dedupKey{productID: a.ProductID, alertType: a.Type()}

	p.mu.Lock()
	if last, ok := p.lastSent[key]; ok && p.now().Sub(last) < p.cfg.MinInterval {
		p.mu.Unlock()
		return SendResult{Reason: "rate_limited"}
	}
	p.mu.Unlock()

	msg := Format(a)

	results := make(map[string]ChannelResult, len(p.channels))
	for _, ch := range p.channels {
		results[ch.Name()] = p.dispatch(ctx, ch, a, msg)
	}

	p.mu.Lock()
	p.lastSent[key] = p.now()
	p.mu.Unlock()

	return SendResult{Sent: true, Channels: results}
}

// dispatch isolates one channel: a panic or error stays in its result.
func (p *Pipeline) dispatch(ctx context.Context, ch Channel, a Alert, msg Message) (result ChannelResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ChannelResult{Error: "channel panicked"}
			slog.Error("Alert channel panicked",
				slog.String("type", "alert"),
				slog.String("channel", ch.Name()),
				slog.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	result = ch.Dispatch(ctx, a, msg)
	if !result.Success {
		slog.Warn("Alert channel failed",
			slog.String("type", "alert"),
			slog.String("channel", ch.Name()),
			slog.String("error", result.Error))
	}
	return result
}

// Reset clears the dedup state.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSent = make(map[dedupKey]time.Time)
}
