// Package channels provides the outbound chat connectors the publisher posts
// loadout announcements to.
//
// A Channel is a single destination: it can list the announcements it
// recently posted, delete one, and send a new one. The Discord connector is
// the production implementation; Stdout writes embeds as JSON lines for dry
// runs.
//
//	ch, err := channels.OpenDiscord(ctx, channels.DiscordConfig{
//		BotToken:  os.Getenv("DISCORD_BOT_TOKEN"),
//		ChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
//	})
//	defer ch.Close()
//	id, err := ch.Send(ctx, channels.Embed{Title: "...", Color: 0x3498db})
package channels

import "context"

// Embed is a rich announcement: title, body, accent colour and optional image.
type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Posted is an announcement previously sent by this bot. Title is the title
// of its first embed.
type Posted struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Channel is one chat destination.
type Channel interface {
	// Recent returns up to limit of the most recent messages authored by
	// this bot that carry an embed, newest first.
	Recent(ctx context.Context, limit int) ([]Posted, error)

	// Delete removes a message by id.
	Delete(ctx context.Context, id string) error

	// Send posts an embed and returns the new message id.
	Send(ctx context.Context, e Embed) (string, error)

	// Close disconnects from the platform.
	Close() error
}
