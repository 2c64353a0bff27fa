// Package slack announces new incidents to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/waypoint/internal/incident"
)

const (
	maxDescriptionLen = 3000
	httpTimeout       = 10 * time.Second
)

// Notifier posts incident announcements to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

var _ incident.Notifier = (*Notifier)(nil)

// New creates a new Slack notifier. If webhookURL is empty, IncidentCreated
// is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// IncidentCreated posts inc to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) IncidentCreated(ctx context.Context, inc *incident.Incident) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(inc))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(inc *incident.Incident) map[string]any {
	blocks := []map[string]any{
		headerBlock(inc),
		fieldsBlock(inc),
	}
	if inc.Description != "" || inc.ImpactDescription != "" {
		blocks = append(blocks, map[string]any{"type": "divider"}, descriptionBlock(inc))
	}
	blocks = append(blocks, map[string]any{"type": "divider"}, contextBlock(inc))
	return map[string]any{"blocks": blocks}
}

func headerBlock(inc *incident.Incident) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s Incident created: %s", typeEmoji(inc.IncidentType), inc.Name),
		},
	}
}

func fieldsBlock(inc *incident.Incident) map[string]any {
	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Records:* %d", inc.EntryCount)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Type:* %s", orNone(inc.IncidentType))},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Responsible:* %s", orNone(inc.ResponsibleParty))},
	}
	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func descriptionBlock(inc *incident.Incident) map[string]any {
	var parts []string
	if inc.Description != "" {
		parts = append(parts, "*Description*\n"+inc.Description)
	}
	if inc.ImpactDescription != "" {
		parts = append(parts, "*Impact*\n"+inc.ImpactDescription)
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": truncate(strings.Join(parts, "\n\n"), maxDescriptionLen),
		},
	}
}

func contextBlock(inc *incident.Incident) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("waypoint • incident %s • %s", inc.ID, inc.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

var typeEmojis = map[string]string{
	"deforestation": "\U0001f332", // evergreen tree
	"fire":          "\U0001f525", // fire
	"mining":        "\u26cf\ufe0f", // pick
	"flood":         "\U0001f30a", // water wave
}

// knownTypes lists typeEmojis keys for prefix matching in a stable order.
var knownTypes = func() []string {
	keys := make([]string, 0, len(typeEmojis))
	for k := range typeEmojis {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}()

func typeEmoji(incidentType string) string {
	t := strings.ToLower(strings.TrimSpace(incidentType))
	for _, k := range knownTypes {
		if strings.HasPrefix(t, k) {
			return typeEmojis[k]
		}
	}
	return "\U0001f4cd" // round pushpin
}

func orNone(s string) string {
	if s == "" {
		return "_none_"
	}
	return s
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
