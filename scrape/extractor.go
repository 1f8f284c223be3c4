// CLAUDE:SUMMARY Page Extractor: drives headless Chrome to a meta page, activates the range tab, reveals the top loadout card and reads it.
// Package scrape extracts the top meta loadout card from a client-rendered
// page using a headless Chrome driven by Rod.
//
// Every Extract call owns its own browser session; Chrome is released on
// every exit path. Only a missing page container (or card) fails the call;
// missing optional card parts degrade to empty values.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/metawatch/loadout"
	"github.com/hazyhaar/metawatch/scrape/internal/browser"
)

// Target is one page to extract.
type Target struct {
	loadout.Combination
	URL string
	// MenuText is the visible text of the sub-tab to activate. Empty means
	// the page's default tab.
	MenuText string
}

// Timing controls the waits around client-side rendering. The target page
// exposes no readiness signal, so fixed settle delays are the default
// synchronisation; StableWait switches to polling for DOM stability, still
// capped by the same delays.
type Timing struct {
	Navigate   time.Duration `yaml:"navigate"`
	Container  time.Duration `yaml:"container"`
	Settle     time.Duration `yaml:"settle"`
	Activate   time.Duration `yaml:"activate"`
	Reveal     time.Duration `yaml:"reveal"`
	StableWait bool          `yaml:"stable_wait"`
}

// DefaultTiming returns the delays the site has been observed to need.
func DefaultTiming() Timing {
	return Timing{
		Navigate:  30 * time.Second,
		Container: 30 * time.Second,
		Settle:    3 * time.Second,
		Activate:  2 * time.Second,
		Reveal:    1 * time.Second,
	}
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Bin              string   `yaml:"bin"`
	Headful          bool     `yaml:"headful"`
	// NoStealth disables the go-rod/stealth evasions, which are on by default.
	NoStealth        bool     `yaml:"no_stealth"`
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// Config configures an Extractor.
type Config struct {
	Browser   BrowserConfig
	Timing    Timing
	Selectors Selectors
	// DumpDir, when set, receives each card's outer HTML as {key}.html for
	// replay with ParseCardHTML.
	DumpDir string
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	d := DefaultTiming()
	if c.Timing.Navigate <= 0 {
		c.Timing.Navigate = d.Navigate
	}
	if c.Timing.Container <= 0 {
		c.Timing.Container = d.Container
	}
	if c.Timing.Settle <= 0 {
		c.Timing.Settle = d.Settle
	}
	if c.Timing.Activate <= 0 {
		c.Timing.Activate = d.Activate
	}
	if c.Timing.Reveal <= 0 {
		c.Timing.Reveal = d.Reveal
	}
	c.Selectors = c.Selectors.WithDefaults()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor drives Chrome through one target at a time.
type Extractor struct {
	cfg Config
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg}
}

// Extract loads t.URL, activates t.MenuText when set, reveals the first
// loadout card and reads it.
func (x *Extractor) Extract(ctx context.Context, t Target) (*Scraped, error) {
	log := x.cfg.Logger.With("target", t.String())
	sel := x.cfg.Selectors
	tm := x.cfg.Timing

	sess, err := browser.Launch(ctx, browser.Config{
		RemoteURL:        x.cfg.Browser.Remote,
		Bin:              x.cfg.Browser.Bin,
		Headful:          x.cfg.Browser.Headful,
		Stealth:          !x.cfg.Browser.NoStealth,
		ResourceBlocking: x.cfg.Browser.ResourceBlocking,
		Logger:           x.cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scrape: %s: %w", t, err)
	}
	defer sess.Close()

	page, err := sess.OpenTab(ctx, t.URL, tm.Navigate)
	if err != nil {
		return nil, fmt.Errorf("scrape: %s: %w", t, err)
	}
	defer page.Close()

	if _, err := page.Timeout(tm.Container).Element(sel.Container); err != nil {
		return nil, fmt.Errorf("scrape: %s: wait for %q: %w", t, sel.Container, err)
	}
	if err := x.settle(ctx, page, tm.Settle); err != nil {
		return nil, err
	}

	if t.MenuText != "" {
		if err := activate(page.Timeout(tm.Container), sel.MenuItem, t.MenuText); err != nil {
			return nil, fmt.Errorf("scrape: %s: activate %q: %w", t, t.MenuText, err)
		}
		log.Debug("scrape: tab activated", "menu", t.MenuText)
		if err := x.settle(ctx, page, tm.Activate); err != nil {
			return nil, err
		}
	}

	has, card, err := page.Has(sel.Card)
	if err != nil {
		return nil, fmt.Errorf("scrape: %s: find card: %w", t, err)
	}
	if !has {
		return nil, fmt.Errorf("scrape: %s: no element matches %q", t, sel.Card)
	}

	// The detail panel is only rendered once the card is interacted with.
	if err := card.ScrollIntoView(); err != nil {
		log.Debug("scrape: scroll into view failed", "error", err)
	}
	if err := card.Click(proto.InputMouseButtonLeft, 1); err != nil {
		log.Debug("scrape: card click failed, falling back to JS click", "error", err)
		if _, err := card.Eval(`() => this.click()`); err != nil {
			log.Debug("scrape: JS click failed", "error", err)
		}
	}
	if err := sleep(ctx, tm.Reveal); err != nil {
		return nil, err
	}

	s := ReadCard(rodCard{el: card}, sel, t.URL)
	s.Combination = t.Combination
	log.Info("scrape: card read", "weapon", s.WeaponName, "lines", len(s.DetailLines), "image", s.ImageSrc != "")

	if x.cfg.DumpDir != "" {
		if err := dumpCard(x.cfg.DumpDir, t.Combination, s.CardHTML); err != nil {
			log.Warn("scrape: dump card failed", "error", err)
		}
	}
	return &s, nil
}

// settle waits for client-side rendering, either for d or until the DOM
// stops changing (capped by d).
func (x *Extractor) settle(ctx context.Context, page *rod.Page, d time.Duration) error {
	if x.cfg.Timing.StableWait {
		if err := page.Timeout(d).WaitDOMStable(d/4, 0); err != nil {
			x.cfg.Logger.Debug("scrape: DOM not stable before deadline", "wait", d, "error", err)
		}
		return ctx.Err()
	}
	return sleep(ctx, d)
}

// activate force-clicks the first menuSelector element whose text contains
// text (case-insensitive), bypassing visibility and overlay checks.
func activate(page *rod.Page, menuSelector, text string) error {
	el, err := page.ElementR(menuSelector, "/"+regexp.QuoteMeta(text)+"/i")
	if err != nil {
		return err
	}
	_, err = el.Eval(`() => this.click()`)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// DumpName returns the file name used for a combination's card dump.
func DumpName(c loadout.Combination) string {
	return unsafeFileChars.ReplaceAllString(strings.ToLower(c.Key()), "-") + ".html"
}

func dumpCard(dir string, c loadout.Combination, cardHTML string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, DumpName(c)), []byte(cardHTML), 0o644)
}
