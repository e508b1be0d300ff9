package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/kilianp07/sosdispatch/core/factory"
)

type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts embeds to a Discord channel over the REST API.
type Discord struct {
	sess    discordSession
	channel string
}

// DiscordConfig configures the Discord notifier.
type DiscordConfig struct {
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

// NewDiscord creates a Discord notifier. No gateway connection is opened.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	if cfg.BotToken == "" || cfg.ChannelID == "" {
		return nil, fmt.Errorf("discord: bot token and channel id are required")
	}
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return &Discord{sess: dg, channel: cfg.ChannelID}, nil
}

// Notify sends msg as an embed.
func (d *Discord) Notify(ctx context.Context, msg Message) error {
	if _, err := d.sess.ChannelMessageSendEmbed(d.channel, discordEmbed(msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

func discordEmbed(msg Message) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Title: msg.Title, Description: msg.Text, Color: parseHexColor(msg.Color)}
	for _, f := range msg.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: true})
	}
	return e
}

func parseHexColor(s string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

func init() {
	_ = Register("discord", func(conf map[string]any) (Notifier, error) {
		var c DiscordConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewDiscord(c)
	})
}
