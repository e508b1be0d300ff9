package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/kilianp07/sosdispatch/core/factory"
)

type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts messages to a Slack channel.
type Slack struct {
	client  slackClient
	channel string
}

// SlackConfig configures the Slack notifier.
type SlackConfig struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
}

// NewSlack creates a Slack notifier using a bot token.
func NewSlack(cfg SlackConfig) (*Slack, error) {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil, fmt.Errorf("slack: token and channel are required")
	}
	return &Slack{client: slackapi.New(cfg.Token), channel: cfg.Channel}, nil
}

// Notify posts msg as a single attachment.
func (s *Slack) Notify(ctx context.Context, msg Message) error {
	if _, _, err := s.client.PostMessageContext(ctx, s.channel, slackOptions(msg)...); err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func slackOptions(msg Message) []slackapi.MsgOption {
	att := slackapi.Attachment{
		Color:    msg.Color,
		Title:    msg.Title,
		Text:     msg.Text,
		Fallback: msg.Title,
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{Title: f.Name, Value: f.Value, Short: true})
	}
	return []slackapi.MsgOption{slackapi.MsgOptionText(msg.Title, false), slackapi.MsgOptionAttachments(att)}
}

func init() {
	_ = Register("slack", func(conf map[string]any) (Notifier, error) {
		var c SlackConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSlack(c)
	})
}
