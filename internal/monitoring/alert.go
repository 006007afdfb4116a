package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/slack-go/slack"
)

// SlackAlerter posts critical errors to an incoming webhook.
type SlackAlerter struct {
	WebhookURL string
	Channel    string
	HTTP       *http.Client
}

func NewSlackAlerter(webhookURL, channel string) *SlackAlerter {
	return &SlackAlerter{
		WebhookURL: webhookURL,
		Channel:    channel,
		HTTP:       &http.Client{Timeout: alertTimeout},
	}
}

func (a *SlackAlerter) Alert(ctx context.Context, e TrackedError) error {
	if a.WebhookURL == "" {
		return nil
	}
	msg := &slack.WebhookMessage{
		Channel: a.Channel,
		Text:    fmt.Sprintf(":rotating_light: *ALERT* severity=%s", e.Severity),
		Attachments: []slack.Attachment{{
			Color:  severityColor(e.Severity),
			Title:  e.Message,
			Fields: contextFields(e),
			Ts:     json.Number(fmt.Sprint(e.Timestamp.Unix())),
		}},
	}

	client := a.HTTP
	if client == nil {
		client = &http.Client{Timeout: alertTimeout}
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, a.WebhookURL, client, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

func severityColor(s Severity) string {
	switch s {
	case SeverityCritical, SeverityHigh:
		return "danger"
	case SeverityMedium:
		return "warning"
	default:
		return "good"
	}
}

func contextFields(e TrackedError) []slack.AttachmentField {
	fields := []slack.AttachmentField{{Title: "Error ID", Value: e.ID, Short: true}}
	if e.Code != "" {
		fields = append(fields, slack.AttachmentField{Title: "Code", Value: e.Code, Short: true})
	}

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, slack.AttachmentField{
			Title: k,
			Value: fmt.Sprint(e.Context[k]),
			Short: true,
		})
	}
	return fields
}
