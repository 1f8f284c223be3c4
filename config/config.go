// CLAUDE:SUMMARY Loads metawatch configuration: .env files, required secrets from the environment, optional YAML overrides with built-in defaults.
// Package config assembles the run configuration.
//
// Secrets always come from the environment (after .env files are loaded).
// Everything else has a built-in default matching the wzstats.gg meta pages
// and can be overridden from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/metawatch/loadout"
	"github.com/hazyhaar/metawatch/scrape"
)

// Environment variable names.
const (
	EnvBotToken   = "DISCORD_BOT_TOKEN"
	EnvChannelID  = "DISCORD_CHANNEL_ID"
	EnvImgurID    = "IMGUR_CLIENT_ID"
	EnvMetaStore  = "META_STORE"
	EnvConfigFile = "METAWATCH_CONFIG"
	EnvEnvFile    = "ENV_FILE"
)

// DefaultSnapshotPath is where the snapshot lives when nothing overrides it.
const DefaultSnapshotPath = "last_meta.json"

// ErrMissingEnv reports a required environment variable that is unset or empty.
type ErrMissingEnv struct {
	Name string
}

func (e *ErrMissingEnv) Error() string {
	return fmt.Sprintf("config: missing required environment variable %s", e.Name)
}

// Secrets are the credentials read from the environment.
type Secrets struct {
	BotToken  string
	ChannelID string
	ImgurID   string
}

// Category is one game mode and the page listing its meta.
type Category struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Color int    `yaml:"color"`
}

// SubCategory is one range band. MenuText is the tab to activate; empty
// keeps the page's default tab.
type SubCategory struct {
	Name     string `yaml:"name"`
	MenuText string `yaml:"menu_text"`
}

// Config is the full run configuration.
type Config struct {
	SnapshotPath  string               `yaml:"snapshot_path"`
	Browser       scrape.BrowserConfig `yaml:"browser"`
	Timing        scrape.Timing        `yaml:"timing"`
	Selectors     scrape.Selectors     `yaml:"selectors"`
	HistoryLimit  int                  `yaml:"history_limit"`
	FailFast      bool                 `yaml:"fail_fast"`
	DryRun        bool                 `yaml:"dry_run"`
	DumpDir       string               `yaml:"dump_dir"`
	Categories    []Category           `yaml:"categories"`
	SubCategories []SubCategory        `yaml:"sub_categories"`
	// Emojis maps "{category}/{subCategory}" to the title emoji.
	Emojis map[string]string `yaml:"emojis"`

	Secrets Secrets `yaml:"-"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file and fills unset fields with
// defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Load resolves the configuration and validates it, so a misconfigured run
// fails before any network activity.
func Load(path string) (*Config, error) {
	cfg, err := Resolve(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve builds the configuration without validating secrets: .env files
// first, then the YAML file (path, or METAWATCH_CONFIG when path is empty,
// or defaults), then environment overrides and secrets.
func Resolve(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadEnvFiles loads .env files without overriding variables already set:
// ENV_FILE alone when set, otherwise .env.local then .env. Missing files
// are ignored.
func LoadEnvFiles() error {
	if f := os.Getenv(EnvEnvFile); f != "" {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load env file %s: %w", f, err)
		}
		return nil
	}
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if p := os.Getenv(EnvMetaStore); p != "" {
		c.SnapshotPath = p
	}
	c.Secrets = Secrets{
		BotToken:  os.Getenv(EnvBotToken),
		ChannelID: os.Getenv(EnvChannelID),
		ImgurID:   os.Getenv(EnvImgurID),
	}
}

// Validate checks secrets and tables. In dry-run mode the Discord
// credentials are not required.
func (c *Config) Validate() error {
	required := []struct{ name, value string }{
		{EnvBotToken, c.Secrets.BotToken},
		{EnvChannelID, c.Secrets.ChannelID},
		{EnvImgurID, c.Secrets.ImgurID},
	}
	for _, r := range required {
		if c.DryRun && r.name != EnvImgurID {
			continue
		}
		if r.value == "" {
			return &ErrMissingEnv{Name: r.name}
		}
	}
	if c.Secrets.ChannelID != "" {
		if _, err := strconv.ParseUint(c.Secrets.ChannelID, 10, 64); err != nil {
			return fmt.Errorf("config: %s must be a numeric channel id, got %q", EnvChannelID, c.Secrets.ChannelID)
		}
	}
	for _, cat := range c.Categories {
		if cat.Name == "" || cat.URL == "" {
			return fmt.Errorf("config: category needs name and url: %+v", cat)
		}
	}
	for _, sub := range c.SubCategories {
		if sub.Name == "" {
			return errors.New("config: sub-category needs a name")
		}
	}
	return nil
}

// Targets expands the category and sub-category tables into extraction
// targets, category-major.
func (c *Config) Targets() []scrape.Target {
	out := make([]scrape.Target, 0, len(c.Categories)*len(c.SubCategories))
	for _, cat := range c.Categories {
		for _, sub := range c.SubCategories {
			out = append(out, scrape.Target{
				Combination: loadout.Combination{Category: cat.Name, SubCategory: sub.Name},
				URL:         cat.URL,
				MenuText:    sub.MenuText,
			})
		}
	}
	return out
}

// Colors returns the category accent table.
func (c *Config) Colors() map[string]int {
	out := make(map[string]int, len(c.Categories))
	for _, cat := range c.Categories {
		out[cat.Name] = cat.Color
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.SnapshotPath == "" {
		c.SnapshotPath = DefaultSnapshotPath
	}
	if len(c.Categories) == 0 {
		c.Categories = []Category{
			{Name: "Resurgence", URL: "https://wzstats.gg/warzone/meta/resurgence", Color: 0x3498db},
			{Name: "Verdansk", URL: "https://wzstats.gg/", Color: 0x2ecc71},
		}
	}
	if len(c.SubCategories) == 0 {
		c.SubCategories = []SubCategory{
			{Name: "Long Range"},
			{Name: "Close Range", MenuText: "Close range"},
			{Name: "Sniper", MenuText: "Sniper"},
		}
	}
	if c.Emojis == nil {
		c.Emojis = map[string]string{
			"Resurgence/Long Range":  "🎯",
			"Resurgence/Close Range": "🔫",
			"Resurgence/Sniper":      "🎯",
			"Verdansk/Long Range":    "🏹",
			"Verdansk/Close Range":   "🪖",
			"Verdansk/Sniper":        "🏹",
		}
	}
	d := scrape.DefaultTiming()
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
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
}
