// Package config loads farmhand.yaml and applies FARMHAND_* environment
// overrides. Every consumer gets its settings from here so the hooks, the
// CLI, and the server agree on paths and thresholds.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names. FARMHAND_CONFIG points at an alternate
// config file; the rest override individual fields.
const (
	EnvConfig     = "FARMHAND_CONFIG"
	EnvAddr       = "FARMHAND_ADDR"
	EnvSocket     = "FARMHAND_SOCKET"
	EnvDBPath     = "FARMHAND_DB"
	EnvDataDir    = "FARMHAND_DATA_DIR"
	EnvScratchDir = "FARMHAND_SCRATCH_DIR"
	EnvStaleAfter = "FARMHAND_STALE_AFTER"
	EnvDefaultTTL = "FARMHAND_DEFAULT_TTL"
	EnvProject    = "FARMHAND_PROJECT"
)

const defaultConfigFile = "farmhand.yaml"

// Config is the resolved configuration after file parse and env overrides.
type Config struct {
	Addr       string
	Socket     string
	DBPath     string
	DataDir    string
	ScratchDir string
	Project    string
	StaleAfter time.Duration
	DefaultTTL time.Duration

	SweepInterval time.Duration
}

// fileConfig mirrors Config for YAML decoding; durations are strings in
// Go duration syntax ("30m", "1h").
type fileConfig struct {
	Addr          string `yaml:"addr"`
	Socket        string `yaml:"socket"`
	DBPath        string `yaml:"db_path"`
	DataDir       string `yaml:"data_dir"`
	ScratchDir    string `yaml:"scratch_dir"`
	Project       string `yaml:"project"`
	StaleAfter    string `yaml:"stale_after"`
	DefaultTTL    string `yaml:"default_ttl"`
	SweepInterval string `yaml:"sweep_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:          ":7453",
		DBPath:        "farmhand.db",
		DataDir:       defaultDataDir(),
		ScratchDir:    "/tmp",
		StaleAfter:    30 * time.Minute,
		DefaultTTL:    time.Hour,
		SweepInterval: time.Minute,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".farmhand"
	}
	return filepath.Join(home, ".farmhand")
}

// Load reads the config file (FARMHAND_CONFIG, else ./farmhand.yaml if
// present) over the defaults, then applies env overrides. A missing
// default file is fine; a missing explicit FARMHAND_CONFIG is an error.
func Load() (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(os.Getenv(EnvConfig))
	explicit := path != ""
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.merge(path, data); err != nil {
			return Config{}, err
		}
	case os.IsNotExist(err) && !explicit:
		// defaults only
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) merge(path string, data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if fc.Addr != "" {
		c.Addr = fc.Addr
	}
	if fc.Socket != "" {
		c.Socket = fc.Socket
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.DataDir != "" {
		c.DataDir = fc.DataDir
	}
	if fc.ScratchDir != "" {
		c.ScratchDir = fc.ScratchDir
	}
	if fc.Project != "" {
		c.Project = fc.Project
	}
	for _, d := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{fc.StaleAfter, "stale_after", &c.StaleAfter},
		{fc.DefaultTTL, "default_ttl", &c.DefaultTTL},
		{fc.SweepInterval, "sweep_interval", &c.SweepInterval},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", path, d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvSocket); v != "" {
		c.Socket = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvScratchDir); v != "" {
		c.ScratchDir = v
	}
	if v := os.Getenv(EnvProject); v != "" {
		c.Project = v
	}
	if v := os.Getenv(EnvStaleAfter); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStaleAfter, err)
		}
		c.StaleAfter = d
	}
	if v := os.Getenv(EnvDefaultTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDefaultTTL, err)
		}
		c.DefaultTTL = d
	}
	return nil
}

// ProjectKey returns the configured project, defaulting to the working
// directory so zero-config setups still scope reservations sensibly.
func (c Config) ProjectKey() string {
	if c.Project != "" {
		return c.Project
	}
	wd, err := os.Getwd()
	if err != nil {
		return "default"
	}
	return wd
}
