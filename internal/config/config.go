// Package config loads fms configuration.
//
// Sources, lowest precedence first:
//  1. built-in defaults
//  2. config file (fms.toml or fms.yaml in . or $HOME/.config/findmyspot)
//  3. .env file
//  4. FMS_* environment variables (FMS_REMOTE_URL for remote.url)
//  5. command-line flags
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FMS"

// Configuration keys.
const (
	KeyIdentity         = "identity"
	KeyCachePath        = "cache.path"
	KeyRemoteKind       = "remote.kind"
	KeyRemoteDir        = "remote.dir"
	KeyRemoteURL        = "remote.url"
	KeyRemoteAuthToken  = "remote.auth_token"
	KeyRemotePoll       = "remote.poll_interval"
	KeyRemoteTimeout    = "remote.timeout"
	KeyTombstoneTTL     = "sync.tombstone_ttl"
	KeyResyncInterval   = "sync.resync_interval"
	KeyResyncMaxElapsed = "sync.resync_max_elapsed"
	KeyDashboardPort    = "dashboard.port"
	KeyLogFile          = "log.file"
	KeyLogMaxSizeMB     = "log.max_size_mb"
	KeyLogMaxBackups    = "log.max_backups"
	KeyLogMaxAgeDays    = "log.max_age_days"
	KeyLogVerbose       = "log.verbose"
)

const (
	defaultConfigName    = "fms"
	defaultEnvFile       = ".env"
	defaultRemoteDirName = "spots"
)

// Remote store kinds.
const (
	RemoteFile     = "file"
	RemoteLibSQL   = "libsql"
	RemotePostgres = "postgres"
	RemoteMemory   = "memory"
)

// Config is the resolved configuration.
type Config struct {
	Identity  string          `mapstructure:"identity"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type CacheConfig struct {
	Path string `mapstructure:"path"`
}

type RemoteConfig struct {
	Kind         string        `mapstructure:"kind"`
	Dir          string        `mapstructure:"dir"`
	URL          string        `mapstructure:"url"`
	AuthToken    string        `mapstructure:"auth_token"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type SyncConfig struct {
	TombstoneTTL     time.Duration `mapstructure:"tombstone_ttl"`
	ResyncInterval   time.Duration `mapstructure:"resync_interval"`
	ResyncMaxElapsed time.Duration `mapstructure:"resync_max_elapsed"`
}

type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Verbose    bool   `mapstructure:"verbose"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit config file. Empty means search for
	// fms.{toml,yaml,yml} in the current directory and the user config dir.
	ConfigFile string

	// EnvFile is the dotenv file to load. Default: ".env". A missing file is
	// not an error.
	EnvFile string

	// Flags are bound by name; see FlagKeys.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to configuration keys. Flags not
// defined on the flag set are skipped.
var FlagKeys = map[string]string{
	"identity":    KeyIdentity,
	"cache":       KeyCachePath,
	"remote":      KeyRemoteKind,
	"remote-dir":  KeyRemoteDir,
	"remote-url":  KeyRemoteURL,
	"port":        KeyDashboardPort,
	"log-file":    KeyLogFile,
	"verbose":     KeyLogVerbose,
	"resync":      KeyResyncInterval,
	"tombstones":  KeyTombstoneTTL,
	"timeout":     KeyRemoteTimeout,
	"poll":        KeyRemotePoll,
	"auth-token":  KeyRemoteAuthToken,
	"max-elapsed": KeyResyncMaxElapsed,
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyIdentity, defaultIdentity())
	v.SetDefault(KeyCachePath, defaultCachePath())
	v.SetDefault(KeyRemoteKind, RemoteFile)
	v.SetDefault(KeyRemoteDir, defaultRemoteDirName)
	v.SetDefault(KeyRemoteURL, "")
	v.SetDefault(KeyRemoteAuthToken, "")
	v.SetDefault(KeyRemotePoll, 2*time.Second)
	v.SetDefault(KeyRemoteTimeout, 10*time.Second)
	v.SetDefault(KeyTombstoneTTL, 2*time.Minute)
	v.SetDefault(KeyResyncInterval, 5*time.Minute)
	v.SetDefault(KeyResyncMaxElapsed, 15*time.Second)
	v.SetDefault(KeyDashboardPort, 8080)
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyLogMaxAgeDays, 28)
	v.SetDefault(KeyLogVerbose, false)
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load resolves the configuration from every source.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = defaultEnvFile
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "findmyspot"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if opts.Flags != nil {
		if err := BindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BindFlags binds every flag in FlagKeys that fs defines.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Validate checks that the remote settings fit the remote kind.
func (c *Config) Validate() error {
	switch c.Remote.Kind {
	case RemoteFile:
		if c.Remote.Dir == "" {
			return fmt.Errorf("%s is required for the %s remote", KeyRemoteDir, RemoteFile)
		}
	case RemoteLibSQL, RemotePostgres:
		if c.Remote.URL == "" {
			return fmt.Errorf("%s is required for the %s remote", KeyRemoteURL, c.Remote.Kind)
		}
	case RemoteMemory:
	default:
		return fmt.Errorf("unknown %s %q (want %s, %s, %s or %s)",
			KeyRemoteKind, c.Remote.Kind, RemoteFile, RemoteLibSQL, RemotePostgres, RemoteMemory)
	}

	if c.Cache.Path == "" {
		return fmt.Errorf("%s is required", KeyCachePath)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("%s must be between 0 and 65535 (got %d)", KeyDashboardPort, c.Dashboard.Port)
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyRemoteTimeout)
	}
	return nil
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".findmyspot", "cache.db")
	}
	return filepath.Join(dir, "findmyspot", "cache.db")
}

func defaultIdentity() string {
	for _, key := range []string{"USER", "USERNAME"} {
		if u := os.Getenv(key); u != "" {
			return u
		}
	}
	return "anonymous"
}
