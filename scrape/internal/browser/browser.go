// CLAUDE:SUMMARY Chrome headless session scoped to one extraction: launch or connect via Rod, open stealth tabs, tear everything down on Close.
// Package browser manages the Chrome headless-shell used for one page
// extraction: launch (or connect to a remote instance) via Rod, open stealth
// tabs, and release Chrome on Close.
package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Config configures a browser session.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin is the Chrome binary path. Empty = launcher lookup/download.
	Bin string

	// Headful disables headless mode (debugging only).
	Headful bool

	// Stealth applies go-rod/stealth evasions to every tab.
	Stealth bool

	// ResourceBlocking lists resource types to block (fonts, media, stylesheets).
	ResourceBlocking []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session owns one Chrome process (or remote connection).
type Session struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// Launch starts Chrome (or connects to RemoteURL) and returns a Session.
// The caller must Close it.
func Launch(ctx context.Context, cfg Config) (*Session, error) {
	cfg.defaults()
	log := cfg.Logger

	s := &Session{cfg: cfg}
	var wsURL string

	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
		log.Debug("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx).Headless(!cfg.Headful)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}

		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		s.lnch = l
		log.Debug("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	s.browser = b
	return s, nil
}

// Close shuts down the browser and the launched Chrome process. Safe to
// call more than once.
func (s *Session) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Kill()
		s.lnch.Cleanup()
		s.lnch = nil
	}
	return err
}
