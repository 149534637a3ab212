package alertengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"livermore/internal/model"
)

// Notifier is the external-delivery side of a triggered alert. It stays an
// interface so a test double or an additional backend can stand in without
// touching the engine; the one production implementation posts to a
// Discord incoming webhook.
type Notifier interface {
	Notify(ctx context.Context, record model.AlertRecord) error
}

// NoopNotifier discards every alert. It is the default when no webhook URL
// is configured, so the engine can run (and be tested) without standing up
// a real Discord collaborator.
type NoopNotifier struct{}

// Notify does nothing and never fails.
func (NoopNotifier) Notify(ctx context.Context, record model.AlertRecord) error { return nil }

// DiscordWebhookNotifier posts a formatted embed to a Discord incoming
// webhook URL for every triggered alert.
type DiscordWebhookNotifier struct {
	url    string
	client *http.Client
}

// NewDiscordWebhookNotifier builds a notifier bound to a webhook URL.
func NewDiscordWebhookNotifier(url string) *DiscordWebhookNotifier {
	return &DiscordWebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields"`
	Timestamp   string              `json:"timestamp"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

const (
	colorBullish = 0x2ecc71
	colorBearish = 0xe74c3c
)

// Notify posts the alert as a single Discord embed.
func (n *DiscordWebhookNotifier) Notify(ctx context.Context, record model.AlertRecord) error {
	color := colorBearish
	if record.PublicDirection() == "bullish" {
		color = colorBullish
	}
	payload := discordPayload{Embeds: []discordEmbed{{
		Title:       fmt.Sprintf("%s %s %s", record.Symbol, record.Timeframe, record.TriggerLabel),
		Description: fmt.Sprintf("macdV=%.2f price=%.2f", record.TriggerValue, record.Price),
		Color:       color,
		Fields: []discordEmbedField{
			{Name: "Histogram", Value: fmt.Sprintf("%.2f", record.Details.Histogram), Inline: true},
			{Name: "Signal", Value: fmt.Sprintf("%.2f", record.Details.Signal), Inline: true},
		},
		Timestamp: time.UnixMilli(record.TriggeredAt).UTC().Format(time.RFC3339),
	}}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord: unexpected status %d", resp.StatusCode)
	}
	return nil
}
