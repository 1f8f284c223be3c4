package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hazyhaar/metawatch/channels"
	"github.com/hazyhaar/metawatch/config"
	"github.com/hazyhaar/metawatch/imagerelay"
	"github.com/hazyhaar/metawatch/loadout"
	"github.com/hazyhaar/metawatch/pipeline"
	"github.com/hazyhaar/metawatch/publish"
	"github.com/hazyhaar/metawatch/scrape"
	"github.com/hazyhaar/metawatch/snapshot"
)

func loadConfig(f *rootFlags) (*config.Config, error) {
	cfg, err := config.Resolve(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildPipeline wires every component from cfg. The returned store must be
// closed by the caller.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, snapshot.Store, error) {
	store, err := snapshot.Open(cfg.SnapshotPath, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DryRun {
		store = snapshot.ReadOnly(store, logger)
	}

	ex := scrape.New(scrape.Config{
		Browser:   cfg.Browser,
		Timing:    cfg.Timing,
		Selectors: cfg.Selectors,
		DumpDir:   cfg.DumpDir,
		Logger:    logger,
	})
	relay := imagerelay.New(cfg.Secrets.ImgurID, imagerelay.WithLogger(logger))

	open := func(ctx context.Context) (channels.Channel, error) {
		if cfg.DryRun {
			return channels.NewStdout(os.Stdout), nil
		}
		d, err := channels.OpenDiscord(ctx, channels.DiscordConfig{
			BotToken:  cfg.Secrets.BotToken,
			ChannelID: cfg.Secrets.ChannelID,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	p := pipeline.New(pipeline.Config{
		Targets:  cfg.Targets(),
		FailFast: cfg.FailFast,
		Publish: publish.Config{
			Emojis:       cfg.Emojis,
			Colors:       cfg.Colors(),
			HistoryLimit: cfg.HistoryLimit,
		},
		Logger: logger,
	}, ex, relay, store, open)
	return p, store, nil
}

func runOnce(ctx context.Context, logger *slog.Logger, f *rootFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	p, store, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return p.Run(ctx)
}

func runScheduled(ctx context.Context, logger *slog.Logger, f *rootFlags, spec string, runNow bool) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	p, store, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := pipeline.NewScheduler(spec, p, logger)
	if err != nil {
		return err
	}
	return s.Run(ctx, runNow)
}

func replayCard(w io.Writer, f *rootFlags, htmlPath, category, sub, pageURL string) error {
	cfg, err := config.Resolve(f.configPath)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(htmlPath)
	if err != nil {
		return fmt.Errorf("metawatch: read %s: %w", htmlPath, err)
	}
	card, err := scrape.ParseCardHTML(string(raw), cfg.Selectors.Card)
	if err != nil {
		return fmt.Errorf("metawatch: parse %s: %w", htmlPath, err)
	}
	s := scrape.ReadCard(card, cfg.Selectors, pageURL)
	s.Combination = loadout.Combination{Category: category, SubCategory: sub}
	r := s.Record()

	out := struct {
		loadout.Record
		ImageSrc string `json:"image_src,omitempty"`
	}{Record: r, ImageSrc: s.ImageSrc}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

func printSnapshot(ctx context.Context, w io.Writer, logger *slog.Logger, f *rootFlags) error {
	cfg, err := config.Resolve(f.configPath)
	if err != nil {
		return err
	}
	store, err := snapshot.Open(cfg.SnapshotPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(store.Load(ctx))
}
