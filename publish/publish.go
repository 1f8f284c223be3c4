// Package publish compares freshly scraped loadouts with the last published
// snapshot and announces the ones that changed.
//
// For each record, in batch order:
//
//   - unchanged weapon and attachments: skipped, the stored entry is carried
//     forward untouched;
//   - otherwise: the previous announcement with the same title is removed
//     (best effort), a new embed is sent, and the new tuple becomes the
//     stored entry.
//
// Calls to the channel are strictly sequential: a stale announcement is
// deleted before its replacement is sent.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/metawatch/channels"
	"github.com/hazyhaar/metawatch/loadout"
	"github.com/hazyhaar/metawatch/snapshot"
)

const (
	// DefaultHistoryLimit is how many recent messages are scanned for a
	// previous announcement. Older duplicates are not cleaned up.
	DefaultHistoryLimit = 50
	// FallbackEmoji is used for combinations missing from the emoji table.
	FallbackEmoji = "🛡️"
	// FallbackColor is the accent for categories missing from the color table.
	FallbackColor = 0x7289DA
)

// Config configures an Engine.
type Config struct {
	// Emojis maps "{category}/{subCategory}" to the title emoji.
	Emojis map[string]string
	// Colors maps a category to its embed accent colour.
	Colors map[string]int
	// HistoryLimit bounds the history scan. Default: 50.
	HistoryLimit int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// EmojiKey builds the Config.Emojis key for a combination.
func EmojiKey(c loadout.Combination) string {
	return c.Category + "/" + c.SubCategory
}

// Report summarises one Publish pass by snapshot key.
type Report struct {
	Published []string
	Skipped   []string
	Deleted   int
	Failed    []string
}

// Engine runs the diff-and-announce pass over one channel.
type Engine struct {
	ch  channels.Channel
	cfg Config
}

// New creates an Engine posting to ch.
func New(ch channels.Channel, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{ch: ch, cfg: cfg}
}

// Title is the two-line embed title for a record.
func (e *Engine) Title(r loadout.Record) string {
	emoji, ok := e.cfg.Emojis[EmojiKey(r.Combination)]
	if !ok || emoji == "" {
		emoji = FallbackEmoji
	}
	return fmt.Sprintf("%s %s %s Meta Loadout\n**%s**", emoji, r.Category, r.SubCategory, r.DisplayName())
}

// Color is the embed accent for a record's category.
func (e *Engine) Color(r loadout.Record) int {
	if c, ok := e.cfg.Colors[r.Category]; ok {
		return c
	}
	return FallbackColor
}

// Description is the embed body listing the attachments.
func Description(r loadout.Record) string {
	return "Attachments:\n" + strings.Join(r.Attachments, "\n")
}

// Publish announces changed records and returns the merged snapshot to
// persist. Entries of prev for combinations absent from records are kept.
// A failed send leaves that key's previous entry in place; all send
// failures are returned joined after the whole batch was processed.
func (e *Engine) Publish(ctx context.Context, records []loadout.Record, prev snapshot.Map) (snapshot.Map, Report, error) {
	log := e.cfg.Logger
	updated := make(snapshot.Map, len(records))
	var (
		report Report
		errs   []error
	)

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		key := r.Key()
		current := snapshot.EntryFor(r)
		old, hadOld := prev[key]

		if hadOld && old.SameContent(current) {
			log.Info("publish: no change, skipping", "key", key)
			updated[key] = old
			report.Skipped = append(report.Skipped, key)
			continue
		}

		log.Info("publish: posting update", "key", key, "weapon", current.Gun)
		title := e.Title(r)
		report.Deleted += e.removePrevious(ctx, key, title, old, hadOld)

		id, err := e.ch.Send(ctx, channels.Embed{
			Title:       title,
			Description: Description(r),
			Color:       e.Color(r),
			ImageURL:    r.ImageURL,
		})
		if err != nil {
			log.Error("publish: send failed", "key", key, "error", err)
			errs = append(errs, fmt.Errorf("publish: %s: %w", key, err))
			report.Failed = append(report.Failed, key)
			continue
		}
		current.MessageID = id
		updated[key] = current
		report.Published = append(report.Published, key)
	}

	return snapshot.Merge(prev, updated), report, errors.Join(errs...)
}

// removePrevious deletes earlier announcements carrying title. A stored
// message id with the same weapon is tried directly; otherwise the recent
// history is scanned. Failures are logged only. Returns the number deleted.
func (e *Engine) removePrevious(ctx context.Context, key, title string, old snapshot.Entry, hadOld bool) int {
	log := e.cfg.Logger

	if hadOld && old.MessageID != "" && e.sameTitle(old, title) {
		if err := e.ch.Delete(ctx, old.MessageID); err != nil {
			log.Warn("publish: delete stored message failed, scanning history", "key", key, "message_id", old.MessageID, "error", err)
		} else {
			log.Info("publish: deleted old message", "key", key, "message_id", old.MessageID)
			return 1
		}
	}

	recent, err := e.ch.Recent(ctx, e.cfg.HistoryLimit)
	if err != nil {
		log.Warn("publish: history scan failed", "key", key, "error", err)
	}
	want := strings.TrimSpace(title)
	deleted := 0
	for _, p := range recent {
		if strings.TrimSpace(p.Title) != want {
			continue
		}
		if err := e.ch.Delete(ctx, p.ID); err != nil {
			log.Warn("publish: delete failed", "key", key, "message_id", p.ID, "error", err)
			continue
		}
		log.Info("publish: deleted old message", "key", key, "message_id", p.ID)
		deleted++
	}
	return deleted
}

// sameTitle reports whether the announcement stored in old would have had
// title.
func (e *Engine) sameTitle(old snapshot.Entry, title string) bool {
	r := loadout.Record{
		Combination: loadout.Combination{Category: old.Mode, SubCategory: old.Range},
		WeaponName:  old.Gun,
	}
	return e.Title(r) == title
}
