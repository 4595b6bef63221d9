package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Fuabioo/settings-merge/internal/pathutil"
)

// Env holds the environment knobs. None of them is needed for a plain
// two-path merge.
type Env struct {
	Debug      bool   `env:"SETTINGS_MERGE_DEBUG"`
	Audit      bool   `env:"SETTINGS_MERGE_AUDIT"`
	AuditDB    string `env:"SETTINGS_MERGE_AUDIT_DB"`
	ConfigPath string `env:"SETTINGS_MERGE_CONFIG"`
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("config: environment: %w", err)
	}
	return e, nil
}

// Config is the optional settings-merge manifest.
type Config struct {
	Merges []MergeEntry `yaml:"merges"`
	Audit  *AuditConfig `yaml:"audit,omitempty"`
}

// MergeEntry names one local-into-target merge.
type MergeEntry struct {
	Name   string `yaml:"name"`
	Local  string `yaml:"local"`
	Target string `yaml:"target"`
}

// AuditConfig controls the merge history database.
type AuditConfig struct {
	Enabled   bool   `yaml:"enabled"` // default: false
	DBPath    string `yaml:"db_path,omitempty"`
	Retention string `yaml:"retention,omitempty"` // e.g. "7d", "30d"
}

// Load searches for the manifest in standard locations and parses it.
// Search order: $SETTINGS_MERGE_CONFIG → $XDG_CONFIG_HOME/settings-merge/config.yaml
// → ~/.config/settings-merge/config.yaml.
// Returns zero-value Config and an empty path if no file is found. Returns
// error if the file exists but is invalid.
func Load(e Env) (Config, string, error) {
	path, err := findConfigPath(e)
	if err != nil {
		return Config{}, "", err
	}
	if path == "" {
		return Config{}, "", nil
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		return Config{}, "", err
	}
	return cfg, path, nil
}

// LoadFrom parses and validates the manifest at path. Relative merge and
// database paths are resolved against the manifest's directory and a
// leading ~/ is expanded.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range cfg.Merges {
		cfg.Merges[i].Local = pathutil.Resolve(cfg.Merges[i].Local, base)
		cfg.Merges[i].Target = pathutil.Resolve(cfg.Merges[i].Target, base)
	}
	if cfg.Audit != nil {
		cfg.Audit.DBPath = pathutil.Resolve(cfg.Audit.DBPath, base)
	}

	return cfg, nil
}

// Validate checks that every merge has a unique name and both paths, and
// that the audit retention parses.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Merges))
	for i, m := range c.Merges {
		if m.Name == "" {
			return fmt.Errorf("merge %d: name is required", i+1)
		}
		if seen[m.Name] {
			return fmt.Errorf("merge %q: duplicate name", m.Name)
		}
		seen[m.Name] = true
		if m.Local == "" {
			return fmt.Errorf("merge %q: local is required", m.Name)
		}
		if m.Target == "" {
			return fmt.Errorf("merge %q: target is required", m.Name)
		}
	}
	if c.Audit != nil && c.Audit.Retention != "" {
		if _, err := ParseDuration(c.Audit.Retention); err != nil {
			return fmt.Errorf("audit retention %q: %w", c.Audit.Retention, err)
		}
	}
	return nil
}

// Resolve returns the merges with the given names, in the order asked for.
// With no names it returns every merge. Unknown names are an error.
func (c Config) Resolve(names ...string) ([]MergeEntry, error) {
	if len(names) == 0 {
		return c.Merges, nil
	}
	out := make([]MergeEntry, 0, len(names))
	for _, name := range names {
		found := false
		for _, m := range c.Merges {
			if m.Name == name {
				out = append(out, m)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("config: no merge named %q", name)
		}
	}
	return out, nil
}

// AuditEnabled reports whether merge history should be recorded.
func (c Config) AuditEnabled(e Env) bool {
	return e.Audit || (c.Audit != nil && c.Audit.Enabled)
}

// AuditDBPath returns the configured history database path, or "" to use
// the default.
func (c Config) AuditDBPath(e Env) string {
	if e.AuditDB != "" {
		return pathutil.ExpandTilde(e.AuditDB)
	}
	if c.Audit != nil {
		return c.Audit.DBPath
	}
	return ""
}

// Retention returns the audit retention, or 0 when none is set.
func (c Config) Retention() time.Duration {
	if c.Audit == nil || c.Audit.Retention == "" {
		return 0
	}
	d, err := ParseDuration(c.Audit.Retention)
	if err != nil {
		return 0
	}
	return d
}

// ParseDuration parses a duration string supporting "Nd" (days) and "Nh" (hours) formats,
// in addition to Go's standard time.Duration formats.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid days %q: %w", numStr, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	return time.ParseDuration(s)
}

// findConfigPath returns the path to the first manifest found,
// or empty string if none exists.
func findConfigPath(e Env) (string, error) {
	// 1. Explicit env var.
	if p := e.ConfigPath; p != "" {
		p = pathutil.ExpandTilde(p)
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("config: $SETTINGS_MERGE_CONFIG points to %s which does not exist", p)
			}
			return "", fmt.Errorf("config: stat %s: %w", p, err)
		}
		return p, nil
	}

	// 2. XDG_CONFIG_HOME.
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		p := filepath.Join(xdg, "settings-merge", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	// 3. Default ~/.config.
	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil // Can't determine home, treat as no config.
	}
	p := filepath.Join(home, ".config", "settings-merge", "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}

	return "", nil
}
