// CLAUDE:SUMMARY Orchestrator: sequential extraction over every combination, image relay, then one publish pass against the stored snapshot.
// Package pipeline runs one scrape, diff and notify cycle.
//
// The extraction phase visits every target in order, one browser session at
// a time. The publish phase then loads the snapshot, opens the chat channel,
// announces changed loadouts, saves the merged snapshot and closes the
// channel. The phases never overlap.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hazyhaar/metawatch/channels"
	"github.com/hazyhaar/metawatch/loadout"
	"github.com/hazyhaar/metawatch/publish"
	"github.com/hazyhaar/metawatch/scrape"
	"github.com/hazyhaar/metawatch/snapshot"
)

// Extractor reads the top loadout card of one target.
type Extractor interface {
	Extract(ctx context.Context, t scrape.Target) (*scrape.Scraped, error)
}

// Rehoster republishes an image and returns its new URL, or "" on failure.
type Rehoster interface {
	Rehost(ctx context.Context, src string) string
}

// ChannelOpener connects the chat channel for the publish phase.
type ChannelOpener func(ctx context.Context) (channels.Channel, error)

// ExtractionError carries the combination whose extraction failed.
type ExtractionError struct {
	Combination loadout.Combination
	Err         error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("pipeline: extract %s: %v", e.Combination, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Config configures a Pipeline.
type Config struct {
	Targets []scrape.Target
	// FailFast aborts the run on the first extraction failure, publishing
	// nothing. Otherwise failed combinations are skipped and reported.
	FailFast bool
	Publish  publish.Config
	// RunID generates the run_id attached to every log line of a run.
	// Default: time-sortable UUIDv7.
	RunID  func() string
	Logger *slog.Logger
}

// Pipeline wires the components of one run.
type Pipeline struct {
	cfg       Config
	extractor Extractor
	relay     Rehoster
	store     snapshot.Store
	open      ChannelOpener
}

// New creates a Pipeline. The store is owned by the caller.
func New(cfg Config, ex Extractor, relay Rehoster, store snapshot.Store, open ChannelOpener) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RunID == nil {
		cfg.RunID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	return &Pipeline{cfg: cfg, extractor: ex, relay: relay, store: store, open: open}
}

// Run executes one full cycle. Extraction and send failures are returned
// joined; best-effort steps only log.
func (p *Pipeline) Run(ctx context.Context) error {
	log := p.cfg.Logger.With("run_id", p.cfg.RunID())
	log.Info("pipeline: run started", "targets", len(p.cfg.Targets))

	records, errs := p.extract(ctx, log)
	if p.cfg.FailFast && len(errs) > 0 {
		log.Error("pipeline: extraction failed, aborting", "error", errs[0])
		return errs[0]
	}
	if len(records) == 0 {
		log.Warn("pipeline: no records extracted, nothing to publish", "failures", len(errs))
		return errors.Join(errs...)
	}

	if err := p.publish(ctx, log, records); err != nil {
		errs = append(errs, err)
	}
	log.Info("pipeline: run finished", "records", len(records), "errors", len(errs))
	return errors.Join(errs...)
}

func (p *Pipeline) extract(ctx context.Context, log *slog.Logger) ([]loadout.Record, []error) {
	var (
		records []loadout.Record
		errs    []error
	)
	for _, t := range p.cfg.Targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		s, err := p.extractor.Extract(ctx, t)
		if err != nil {
			xerr := &ExtractionError{Combination: t.Combination, Err: err}
			log.Error("pipeline: extraction failed", "target", t.String(), "error", err)
			errs = append(errs, xerr)
			if p.cfg.FailFast {
				break
			}
			continue
		}
		r := s.Record()
		if s.ImageSrc != "" {
			r.ImageURL = p.relay.Rehost(ctx, s.ImageSrc)
		}
		log.Info("pipeline: extracted", "key", r.Key(), "weapon", r.DisplayName(), "attachments", len(r.Attachments), "updated", r.DisplayUpdated(), "image", r.ImageURL != "")
		records = append(records, r)
	}
	return records, errs
}

func (p *Pipeline) publish(ctx context.Context, log *slog.Logger, records []loadout.Record) error {
	prev := p.store.Load(ctx)

	ch, err := p.open(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: open channel: %w", err)
	}
	defer func() {
		if err := ch.Close(); err != nil {
			log.Warn("pipeline: close channel", "error", err)
		}
	}()

	pcfg := p.cfg.Publish
	pcfg.Logger = log
	merged, report, perr := publish.New(ch, pcfg).Publish(ctx, records, prev)
	log.Info("pipeline: publish done",
		"published", len(report.Published),
		"skipped", len(report.Skipped),
		"deleted", report.Deleted,
		"failed", len(report.Failed))

	// Whatever was sent must be recorded, even if the run is being cancelled.
	if err := p.store.Save(context.WithoutCancel(ctx), merged); err != nil {
		return errors.Join(perr, fmt.Errorf("pipeline: save snapshot: %w", err))
	}
	return perr
}
