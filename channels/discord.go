package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// maxHistoryPage is the Discord API cap on messages returned per request.
const maxHistoryPage = 100

// DiscordConfig configures the Discord connector.
type DiscordConfig struct {
	// BotToken is the Discord bot token (from Developer Portal). The "Bot "
	// prefix is added when missing.
	BotToken string
	// ChannelID is the numeric id of the text channel to post in.
	ChannelID string
	// ReadyTimeout bounds the wait for the gateway Ready event. Default: 30s.
	ReadyTimeout time.Duration

	Logger *slog.Logger
}

func (c *DiscordConfig) defaults() {
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.BotToken != "" && !strings.HasPrefix(c.BotToken, "Bot ") {
		c.BotToken = "Bot " + c.BotToken
	}
}

// discordAPI is the subset of *discordgo.Session the connector uses.
type discordAPI interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// Discord is a Channel posting to one Discord text channel through a bot
// gateway session.
type Discord struct {
	api       discordAPI
	channelID string
	botUserID string
	logger    *slog.Logger
}

// OpenDiscord opens a gateway session, waits for Ready, and resolves the
// configured channel. The session stays open until Close.
func OpenDiscord(ctx context.Context, cfg DiscordConfig) (*Discord, error) {
	cfg.defaults()
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}

	s, err := discordgo.New(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	ready := make(chan *discordgo.User, 1)
	s.AddHandlerOnce(func(_ *discordgo.Session, r *discordgo.Ready) {
		ready <- r.User
	})

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("discord: open gateway: %w", err)
	}

	var user *discordgo.User
	select {
	case user = <-ready:
	case <-time.After(cfg.ReadyTimeout):
		s.Close()
		return nil, &ErrNotReady{Platform: "discord", Cause: fmt.Errorf("no ready event after %s", cfg.ReadyTimeout)}
	case <-ctx.Done():
		s.Close()
		return nil, &ErrNotReady{Platform: "discord", Cause: ctx.Err()}
	}
	cfg.Logger.Info("discord: logged in", "user", user.Username, "user_id", user.ID)

	d := newDiscord(s, cfg.ChannelID, user.ID, cfg.Logger)
	if _, err := s.Channel(cfg.ChannelID, discordgo.WithContext(ctx)); err != nil {
		s.Close()
		return nil, &ErrChannelNotFound{Channel: cfg.ChannelID, Cause: err}
	}
	return d, nil
}

func newDiscord(api discordAPI, channelID, botUserID string, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{api: api, channelID: channelID, botUserID: botUserID, logger: logger}
}

// Recent pages backwards through channel history, keeping this bot's own
// messages that carry at least one embed. limit bounds the number of
// messages scanned, not the number returned.
func (d *Discord) Recent(ctx context.Context, limit int) ([]Posted, error) {
	var (
		out    []Posted
		before string
	)
	for scanned := 0; scanned < limit; {
		page := min(limit-scanned, maxHistoryPage)
		msgs, err := d.api.ChannelMessages(d.channelID, page, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return out, fmt.Errorf("discord: history: %w", err)
		}
		for _, m := range msgs {
			if m.Author == nil || m.Author.ID != d.botUserID || len(m.Embeds) == 0 {
				continue
			}
			out = append(out, Posted{ID: m.ID, Title: m.Embeds[0].Title})
		}
		scanned += len(msgs)
		if len(msgs) < page {
			break
		}
		before = msgs[len(msgs)-1].ID
	}
	return out, nil
}

func (d *Discord) Delete(ctx context.Context, id string) error {
	if err := d.api.ChannelMessageDelete(d.channelID, id, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: delete %s: %w", id, err)
	}
	return nil
}

func (d *Discord) Send(ctx context.Context, e Embed) (string, error) {
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	m, err := d.api.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return "", &ErrSendFailed{Channel: d.channelID, Platform: "discord", Cause: err}
	}
	return m.ID, nil
}

func (d *Discord) Close() error {
	return d.api.Close()
}
