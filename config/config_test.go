package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv(EnvBotToken, "token")
	t.Setenv(EnvChannelID, "123456789012345678")
	t.Setenv(EnvImgurID, "imgur")
	t.Setenv(EnvMetaStore, "")
	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvEnvFile, "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestDefaults(t *testing.T) {
	// WHAT: With no file, the built-in tables reproduce the six wzstats.gg combinations.
	// WHY: A run without a config file must target the same pages, tabs and colors as always.
	cfg := Default()
	if cfg.SnapshotPath != "last_meta.json" {
		t.Errorf("snapshot path: got %q", cfg.SnapshotPath)
	}
	var keys []string
	for _, tg := range cfg.Targets() {
		keys = append(keys, tg.Key()+"|"+tg.URL+"|"+tg.MenuText)
	}
	want := []string{
		"Resurgence_Long Range|https://wzstats.gg/warzone/meta/resurgence|",
		"Resurgence_Close Range|https://wzstats.gg/warzone/meta/resurgence|Close range",
		"Resurgence_Sniper|https://wzstats.gg/warzone/meta/resurgence|Sniper",
		"Verdansk_Long Range|https://wzstats.gg/|",
		"Verdansk_Close Range|https://wzstats.gg/|Close range",
		"Verdansk_Sniper|https://wzstats.gg/|Sniper",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("targets (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"Resurgence": 0x3498db, "Verdansk": 0x2ecc71}, cfg.Colors()); diff != "" {
		t.Errorf("colors (-want +got):\n%s", diff)
	}
	if cfg.Emojis["Verdansk/Close Range"] != "🪖" || cfg.Emojis["Resurgence/Close Range"] != "🔫" {
		t.Errorf("emojis: %v", cfg.Emojis)
	}
	if cfg.HistoryLimit != 50 || cfg.Timing.Settle != 3*time.Second {
		t.Errorf("limits: history %d settle %v", cfg.HistoryLimit, cfg.Timing.Settle)
	}
}

func TestLoad_MissingEnv(t *testing.T) {
	for _, name := range []string{EnvBotToken, EnvChannelID, EnvImgurID} {
		t.Run(name, func(t *testing.T) {
			setSecrets(t)
			t.Setenv(name, "")
			_, err := Load("")
			var missing *ErrMissingEnv
			if !errors.As(err, &missing) {
				t.Fatalf("got %v, want ErrMissingEnv", err)
			}
			if missing.Name != name {
				t.Errorf("name: got %q, want %q", missing.Name, name)
			}
		})
	}
}

func TestLoad_NonNumericChannel(t *testing.T) {
	setSecrets(t)
	t.Setenv(EnvChannelID, "general")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_DryRunSkipsDiscordSecrets(t *testing.T) {
	setSecrets(t)
	t.Setenv(EnvBotToken, "")
	t.Setenv(EnvChannelID, "")
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("dry_run: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.DryRun {
		t.Error("dry_run not read")
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	// WHAT: YAML values override defaults; unset fields keep them; META_STORE wins over the file.
	setSecrets(t)
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	yml := `
snapshot_path: state.db
fail_fast: true
history_limit: 20
timing:
  settle: 5s
  stable_wait: true
browser:
  no_stealth: true
  resource_blocking: [font, media]
categories:
  - name: Rebirth
    url: https://example.test/rebirth
    color: 0xff0000
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SnapshotPath != "state.db" || !cfg.FailFast || cfg.HistoryLimit != 20 {
		t.Errorf("scalars: %+v", cfg)
	}
	if cfg.Timing.Settle != 5*time.Second || !cfg.Timing.StableWait || cfg.Timing.Reveal != time.Second {
		t.Errorf("timing: %+v", cfg.Timing)
	}
	if !cfg.Browser.NoStealth || len(cfg.Browser.ResourceBlocking) != 2 {
		t.Errorf("browser: %+v", cfg.Browser)
	}
	if len(cfg.Targets()) != 3 || cfg.Colors()["Rebirth"] != 0xff0000 {
		t.Errorf("tables: %+v", cfg.Categories)
	}
	if cfg.Secrets.ImgurID != "imgur" {
		t.Errorf("secrets not read")
	}

	t.Setenv(EnvMetaStore, "/tmp/other.json")
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SnapshotPath != "/tmp/other.json" {
		t.Errorf("META_STORE override: got %q", cfg.SnapshotPath)
	}
}

func TestLoad_BadFile(t *testing.T) {
	setSecrets(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("categories: [oops"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_InvalidCategory(t *testing.T) {
	setSecrets(t)
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	os.WriteFile(path, []byte("categories:\n  - name: NoURL\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadEnvFiles(t *testing.T) {
	// WHAT: .env.local takes precedence over .env and neither overrides the real environment.
	setSecrets(t)
	dir, _ := os.Getwd()
	os.WriteFile(filepath.Join(dir, ".env.local"), []byte("METAWATCH_TEST_A=local\n"), 0o644)
	os.WriteFile(filepath.Join(dir, ".env"), []byte("METAWATCH_TEST_A=base\nMETAWATCH_TEST_B=base\nIMGUR_CLIENT_ID=fromfile\n"), 0o644)
	t.Setenv("METAWATCH_TEST_A", "")
	os.Unsetenv("METAWATCH_TEST_A")
	t.Setenv("METAWATCH_TEST_B", "")
	os.Unsetenv("METAWATCH_TEST_B")

	if err := LoadEnvFiles(); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("METAWATCH_TEST_A"); got != "local" {
		t.Errorf("A: got %q", got)
	}
	if got := os.Getenv("METAWATCH_TEST_B"); got != "base" {
		t.Errorf("B: got %q", got)
	}
	if got := os.Getenv(EnvImgurID); got != "imgur" {
		t.Errorf("existing variable overridden: %q", got)
	}
}

func TestLoadEnvFiles_ExplicitFile(t *testing.T) {
	setSecrets(t)
	dir, _ := os.Getwd()
	os.WriteFile(filepath.Join(dir, ".env"), []byte("METAWATCH_TEST_C=default\n"), 0o644)
	custom := filepath.Join(dir, "custom.env")
	os.WriteFile(custom, []byte("METAWATCH_TEST_C=custom\n"), 0o644)
	t.Setenv(EnvEnvFile, custom)
	t.Setenv("METAWATCH_TEST_C", "")
	os.Unsetenv("METAWATCH_TEST_C")

	if err := LoadEnvFiles(); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("METAWATCH_TEST_C"); got != "custom" {
		t.Errorf("got %q, want custom", got)
	}
}
