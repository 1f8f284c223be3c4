// CLAUDE:SUMMARY CLI entry point for metawatch: one-shot run, cron schedule, card replay and snapshot dump.
// Command metawatch scrapes the current meta loadouts, rehosts their images
// and announces changed loadouts on Discord.
//
// Usage:
//
//	metawatch                              # one run, non-zero exit on failure
//	metawatch schedule --cron "@every 1h"  # run on a schedule until signalled
//	metawatch extract --html card.html     # replay a saved card, print the record
//	metawatch snapshot                     # print the stored snapshot
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	logLevel   string
	dryRun     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("metawatch: fatal", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "metawatch",
		Short:         "Announce meta loadout changes on Discord",
		Long:          "Scrapes the top meta loadout for every category and range band, rehosts the weapon image and posts changed loadouts to a Discord channel.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), newLogger(f.logLevel), f)
		},
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "path to YAML config (default $METAWATCH_CONFIG)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&f.dryRun, "dry-run", false, "print notifications to stdout instead of Discord")

	root.AddCommand(newScheduleCmd(f), newExtractCmd(f), newSnapshotCmd(f))
	return root
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return logger
}

func newScheduleCmd(f *rootFlags) *cobra.Command {
	var (
		spec   string
		runNow bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduled(cmd.Context(), newLogger(f.logLevel), f, spec, runNow)
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "@every 1h", "cron spec (five fields or @every/@hourly descriptors)")
	cmd.Flags().BoolVar(&runNow, "now", false, "start a run immediately instead of waiting for the first tick")
	return cmd
}

func newExtractCmd(f *rootFlags) *cobra.Command {
	var (
		htmlPath string
		category string
		sub      string
		pageURL  string
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Replay a saved loadout card and print the normalized record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			newLogger(f.logLevel)
			if htmlPath == "" {
				return fmt.Errorf("metawatch: --html is required")
			}
			return replayCard(cmd.OutOrStdout(), f, htmlPath, category, sub, pageURL)
		},
	}
	cmd.Flags().StringVar(&htmlPath, "html", "", "saved card HTML (see dump_dir)")
	cmd.Flags().StringVar(&category, "category", "", "category to tag the record with")
	cmd.Flags().StringVar(&sub, "sub", "", "sub-category to tag the record with")
	cmd.Flags().StringVar(&pageURL, "page-url", "", "page URL used to resolve a relative image src")
	return cmd
}

func newSnapshotCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the stored snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printSnapshot(cmd.Context(), cmd.OutOrStdout(), newLogger(f.logLevel), f)
		},
	}
}
