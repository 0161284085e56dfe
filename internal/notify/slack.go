package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// Slack posts events to an incoming webhook.
type Slack struct {
	url string
}

// NewSlack creates a Slack notifier for the given incoming-webhook URL.
func NewSlack(webhookURL string) *Slack {
	return &Slack{url: webhookURL}
}

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, evt Event) error {
	f := format(evt)
	msg := &slackapi.WebhookMessage{
		Text:        f.Title,
		Attachments: []slackapi.Attachment{toAttachment(f)},
	}
	if err := slackapi.PostWebhookContext(ctx, s.url, msg); err != nil {
		return fmt.Errorf("notify: slack: %w", err)
	}
	return nil
}

func toAttachment(f formatted) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    f.Title,
		Text:     f.Body,
		Color:    f.Color,
		Fallback: f.Title,
	}
	for _, fl := range f.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: fl.Name,
			Value: fl.Value,
			Short: fl.Short,
		})
	}
	return att
}
