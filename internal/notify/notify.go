// Package notify announces conversation lifecycle events to chat platforms.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/voicedesk/internal/config"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	KindConversationEnded  Kind = "conversation.ended"
	KindConversationReaped Kind = "conversation.reaped"
)

// Color constants for event severity.
const (
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
)

// Event describes something that happened to a conversation.
type Event struct {
	Kind           Kind
	ConversationID string
	AgentID        string
	ConnectionType string
	Duration       time.Duration
	MessageCount   int
}

// Notifier delivers events. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// field is a name/value pair rendered as a Slack attachment field or a
// Discord embed field.
type field struct {
	Name  string
	Value string
	Short bool
}

// formatted is the platform-neutral rendering of an Event.
type formatted struct {
	Title  string
	Body   string
	Color  string
	Fields []field
}

func format(evt Event) formatted {
	f := formatted{Color: ColorInfo}
	switch evt.Kind {
	case KindConversationEnded:
		f.Title = "Conversation ended"
		f.Body = fmt.Sprintf("Conversation `%s` was closed by the client.", evt.ConversationID)
	case KindConversationReaped:
		f.Title = "Stale conversation closed"
		f.Body = fmt.Sprintf("Conversation `%s` never reported an end and was closed by the reaper.", evt.ConversationID)
		f.Color = ColorWarning
	default:
		f.Title = string(evt.Kind)
		f.Body = fmt.Sprintf("Conversation `%s`.", evt.ConversationID)
	}

	if evt.AgentID != "" {
		f.Fields = append(f.Fields, field{Name: "Agent", Value: evt.AgentID, Short: true})
	}
	if evt.ConnectionType != "" {
		f.Fields = append(f.Fields, field{Name: "Connection", Value: evt.ConnectionType, Short: true})
	}
	f.Fields = append(f.Fields,
		field{Name: "Duration", Value: evt.Duration.Round(time.Second).String(), Short: true},
		field{Name: "Messages", Value: strconv.Itoa(evt.MessageCount), Short: true},
	)
	return f
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier. Every notifier is tried even if an earlier one fails.
func (m Multi) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the notifier for the configured webhooks. With nothing
// configured it returns Nop.
func FromConfig(cfg config.NotifyConfig, log zerolog.Logger) (Notifier, error) {
	var m Multi
	if cfg.SlackWebhookURL != "" {
		m = append(m, NewSlack(cfg.SlackWebhookURL))
		log.Info().Msg("slack notifications enabled")
	}
	if cfg.DiscordWebhookID != "" {
		d, err := NewDiscord(cfg.DiscordWebhookID, cfg.DiscordWebhookToken)
		if err != nil {
			return nil, err
		}
		m = append(m, d)
		log.Info().Msg("discord notifications enabled")
	}
	switch len(m) {
	case 0:
		return Nop{}, nil
	case 1:
		return m[0], nil
	}
	return m, nil
}
