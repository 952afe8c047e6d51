package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	r := *c
	if r.Remote.AuthToken != "" {
		r.Remote.AuthToken = "********"
	}
	if r.Remote.URL != "" {
		r.Remote.URL = RedactURL(r.Remote.URL)
	}
	return &r
}

// RedactURL drops credentials from a database URL for display.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid url)"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	q := u.Query()
	if q.Has("authToken") {
		q.Set("authToken", "xxxxx")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// WriteDefault writes the default configuration as a TOML file. It refuses
// to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "# fms configuration. Environment variables (FMS_REMOTE_URL, ...) and flags override these values."); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(Default().Settings()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Settings returns c as nested tables with durations as strings, the form
// Load decodes.
func (c *Config) Settings() map[string]any {
	return map[string]any{
		"identity": c.Identity,
		"cache": map[string]any{
			"path": c.Cache.Path,
		},
		"remote": map[string]any{
			"kind":          c.Remote.Kind,
			"dir":           c.Remote.Dir,
			"url":           c.Remote.URL,
			"auth_token":    c.Remote.AuthToken,
			"poll_interval": c.Remote.PollInterval.String(),
			"timeout":       c.Remote.Timeout.String(),
		},
		"sync": map[string]any{
			"tombstone_ttl":      c.Sync.TombstoneTTL.String(),
			"resync_interval":    c.Sync.ResyncInterval.String(),
			"resync_max_elapsed": c.Sync.ResyncMaxElapsed.String(),
		},
		"dashboard": map[string]any{
			"port": c.Dashboard.Port,
		},
		"log": map[string]any{
			"file":         c.Log.File,
			"max_size_mb":  c.Log.MaxSizeMB,
			"max_backups":  c.Log.MaxBackups,
			"max_age_days": c.Log.MaxAgeDays,
			"verbose":      c.Log.Verbose,
		},
	}
}
