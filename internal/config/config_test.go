package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// isolate points Load at an empty directory so no stray fms.toml or .env
// is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Remote.Kind != RemoteFile || cfg.Remote.Dir != "spots" {
		t.Errorf("unexpected remote defaults: %+v", cfg.Remote)
	}
	if cfg.Remote.PollInterval != 2*time.Second || cfg.Remote.Timeout != 10*time.Second {
		t.Errorf("unexpected remote durations: %+v", cfg.Remote)
	}
	if cfg.Sync.TombstoneTTL != 2*time.Minute || cfg.Sync.ResyncMaxElapsed != 15*time.Second {
		t.Errorf("unexpected sync defaults: %+v", cfg.Sync)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Dashboard.Port)
	}
	if cfg.Identity == "" || cfg.Cache.Path == "" {
		t.Errorf("identity and cache path should default: %+v", cfg)
	}
}

func TestLoad_NoSources(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.File != "" {
		t.Errorf("expected no config file, got %s", cfg.File)
	}
	if cfg.Remote.Kind != RemoteFile {
		t.Errorf("expected default remote kind, got %s", cfg.Remote.Kind)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)

	writeFile(t, filepath.Join(dir, "fms.toml"), `
identity = "from-file"

[remote]
kind = "libsql"
url = "file:remote.db"
poll_interval = "5s"

[dashboard]
port = 9000

[sync]
tombstone_ttl = "1m"
`)
	writeFile(t, filepath.Join(dir, ".env"), "FMS_DASHBOARD_PORT=9100\nFMS_IDENTITY=from-dotenv\n")
	// godotenv sets the process environment directly.
	t.Cleanup(func() { _ = os.Unsetenv("FMS_DASHBOARD_PORT") })
	t.Setenv("FMS_IDENTITY", "from-env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 0, "")
	fs.String("remote-url", "", "")
	if err := fs.Parse([]string{"--remote-url", "file:flag.db"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := Load(Options{Flags: fs})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !strings.HasSuffix(cfg.File, "fms.toml") {
		t.Errorf("expected fms.toml to be used, got %q", cfg.File)
	}
	if cfg.Remote.Kind != RemoteLibSQL || cfg.Remote.PollInterval != 5*time.Second {
		t.Errorf("file values not applied: %+v", cfg.Remote)
	}
	if cfg.Sync.TombstoneTTL != time.Minute {
		t.Errorf("expected 1m tombstone TTL, got %v", cfg.Sync.TombstoneTTL)
	}
	// .env beats the file.
	if cfg.Dashboard.Port != 9100 {
		t.Errorf("expected port 9100 from .env, got %d", cfg.Dashboard.Port)
	}
	// The real environment beats .env.
	if cfg.Identity != "from-env" {
		t.Errorf("expected identity from env, got %q", cfg.Identity)
	}
	// A set flag beats everything; an unset flag changes nothing.
	if cfg.Remote.URL != "file:flag.db" {
		t.Errorf("expected url from flag, got %q", cfg.Remote.URL)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, "remote:\n  kind: memory\nlog:\n  file: fms.log\n  verbose: true\n")

	cfg, err := Load(Options{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.Kind != RemoteMemory || cfg.Log.File != "fms.log" || !cfg.Log.Verbose {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	if _, err := Load(Options{ConfigFile: filepath.Join(dir, "nope.toml")}); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown kind", func(c *Config) { c.Remote.Kind = "s3" }, "unknown remote.kind"},
		{"file without dir", func(c *Config) { c.Remote.Dir = "" }, "remote.dir is required"},
		{"postgres without url", func(c *Config) { c.Remote.Kind = RemotePostgres }, "remote.url is required"},
		{"libsql with url", func(c *Config) { c.Remote.Kind = RemoteLibSQL; c.Remote.URL = "libsql://x" }, ""},
		{"bad port", func(c *Config) { c.Dashboard.Port = 70000 }, "dashboard.port"},
		{"zero timeout", func(c *Config) { c.Remote.Timeout = 0 }, "remote.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "conf", "fms.toml")

	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Error("expected error when the file exists")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("forced WriteDefault failed: %v", err)
	}

	cfg, err := Load(Options{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load of written template failed: %v", err)
	}
	want := Default()
	want.File = cfg.File
	if *cfg != *want {
		t.Errorf("template round trip mismatch:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Remote.AuthToken = "secret"

	r := cfg.Redacted()
	if r.Remote.AuthToken == "secret" || cfg.Remote.AuthToken != "secret" {
		t.Errorf("expected masked copy, got %q (original %q)", r.Remote.AuthToken, cfg.Remote.AuthToken)
	}
	if Default().Redacted().Remote.AuthToken != "" {
		t.Error("empty token should stay empty")
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://user:secret@db:5432/spots", "postgres://user:xxxxx@db:5432/spots"},
		{"libsql://spots.turso.io?authToken=abc", "libsql://spots.turso.io?authToken=xxxxx"},
		{"file:remote.db", "file:remote.db"},
	}
	for _, tt := range tests {
		if got := RedactURL(tt.in); got != tt.want {
			t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
