package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvAddr, "")
	t.Setenv(EnvStaleAfter, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7453" {
		t.Fatalf("expected default addr, got %s", cfg.Addr)
	}
	if cfg.StaleAfter != 30*time.Minute {
		t.Fatalf("expected 30m staleness default, got %v", cfg.StaleAfter)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "farmhand.yaml")
	body := `
addr: ":9000"
db_path: /var/lib/farmhand/farmhand.db
scratch_dir: /tmp/scratch
stale_after: 15m
default_ttl: 2h
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(EnvConfig, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("addr not applied: %s", cfg.Addr)
	}
	if cfg.StaleAfter != 15*time.Minute || cfg.DefaultTTL != 2*time.Hour {
		t.Fatalf("durations not applied: %v %v", cfg.StaleAfter, cfg.DefaultTTL)
	}
	if cfg.ScratchDir != "/tmp/scratch" {
		t.Fatalf("scratch dir not applied: %s", cfg.ScratchDir)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "farmhand.yaml")
	if err := os.WriteFile(path, []byte("addr: \":9000\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(EnvConfig, path)
	t.Setenv(EnvAddr, ":7777")
	t.Setenv(EnvStaleAfter, "45m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7777" {
		t.Fatalf("env must beat file, got %s", cfg.Addr)
	}
	if cfg.StaleAfter != 45*time.Minute {
		t.Fatalf("stale override not applied: %v", cfg.StaleAfter)
	}
}

func TestExplicitMissingConfigErrors(t *testing.T) {
	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestBadDurationErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farmhand.yaml")
	if err := os.WriteFile(path, []byte("stale_after: soonish\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(EnvConfig, path)
	if _, err := Load(); err == nil {
		t.Fatal("expected duration parse error")
	}
}
