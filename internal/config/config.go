// Package config loads the notionsync configuration from a file and the
// environment into one explicit struct.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/notionsync/notionsync/internal/daemon"
	"github.com/notionsync/notionsync/internal/notion"
	"github.com/notionsync/notionsync/internal/observe"
	"github.com/notionsync/notionsync/internal/record"
	"github.com/notionsync/notionsync/internal/retry"
	"github.com/notionsync/notionsync/internal/runlock"
	notionsync "github.com/notionsync/notionsync/internal/sync"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// EnvPrefix prefixes every environment override, e.g.
// NOTIONSYNC_SYNC_LOOKBACK=2h.
const EnvPrefix = "NOTIONSYNC"

// Config is the whole process configuration.
type Config struct {
	Notion     NotionConfig      `mapstructure:"notion"`
	Store      StoreConfig       `mapstructure:"store"`
	Sync       SyncConfig        `mapstructure:"sync"`
	Daemon     DaemonConfig      `mapstructure:"daemon"`
	Alerts     AlertsConfig      `mapstructure:"alerts"`
	Log        observe.LogConfig `mapstructure:"log"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Vocabulary VocabularyConfig  `mapstructure:"vocabulary"`
	LockFile   string            `mapstructure:"lock_file"`
}

type NotionConfig struct {
	Token       string        `mapstructure:"token"`
	DatabaseID  string        `mapstructure:"database_id"`
	PageSize    int           `mapstructure:"page_size"`
	CallDelay   time.Duration `mapstructure:"call_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`

	Properties      notion.Properties      `mapstructure:"properties"`
	AlertProperties notion.AlertProperties `mapstructure:"alert_properties"`
}

type StoreConfig struct {
	// Driver is postgres or sqlite.
	Driver string `mapstructure:"driver"`

	// URL is the Postgres connection string.
	URL string `mapstructure:"url"`

	// Path is the SQLite database file.
	Path string `mapstructure:"path"`

	CallDelay   time.Duration `mapstructure:"call_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

type SyncConfig struct {
	Source          string        `mapstructure:"source"`
	Lookback        time.Duration `mapstructure:"lookback"`
	ErrorAlertRatio float64       `mapstructure:"error_alert_ratio"`
	Required        []string      `mapstructure:"required"`
}

type DaemonConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	FailureInterval time.Duration `mapstructure:"failure_interval"`
}

type AlertsConfig struct {
	observe.AlertConfig `mapstructure:",squash"`

	DatabaseID string `mapstructure:"database_id"`
}

type MetricsConfig struct {
	// Addr serves /metrics in loop mode when set, e.g. ":9464".
	Addr string `mapstructure:"addr"`

	// Events also streams pass results over WebSocket on /events.
	Events bool `mapstructure:"events"`
}

type VocabularyConfig struct {
	// File is a TOML or YAML vocabulary; empty uses the built-in list.
	File string `mapstructure:"file"`

	// Watch reloads File on change in loop mode.
	Watch bool `mapstructure:"watch"`
}

// Default returns the configuration used for every unset key.
func Default() *Config {
	n := notion.DefaultConfig()
	return &Config{
		Notion: NotionConfig{
			PageSize:        n.PageSize,
			CallDelay:       n.CallDelay,
			Timeout:         n.Timeout,
			MaxAttempts:     n.Retry.MaxAttempts,
			BaseDelay:       n.Retry.BaseDelay,
			Properties:      n.Properties,
			AlertProperties: n.Alerts,
		},
		Store: StoreConfig{
			Driver:      DriverPostgres,
			Path:        "notionsync.db",
			MaxAttempts: 3,
			BaseDelay:   time.Second,
		},
		Sync: SyncConfig{
			Source:          notionsync.DefaultSource,
			Lookback:        time.Hour,
			ErrorAlertRatio: 0.5,
			Required:        append([]string(nil), record.DefaultRequired...),
		},
		Daemon: DaemonConfig{
			Interval:        5 * time.Minute,
			FailureInterval: time.Minute,
		},
		Alerts:   AlertsConfig{AlertConfig: observe.DefaultAlertConfig()},
		Log:      observe.DefaultLogConfig(),
		LockFile: runlock.DefaultPath(),
	}
}

// Load reads path (YAML, TOML or JSON by extension) over the defaults and
// applies environment overrides. With an empty path it looks for
// notionsync.{yaml,toml,json} in the working directory and in
// ~/.config/notionsync; a missing file is not an error then.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional names used by the hosting platforms.
	_ = v.BindEnv("notion.token", EnvPrefix+"_NOTION_TOKEN", "NOTION_TOKEN")
	_ = v.BindEnv("store.url", EnvPrefix+"_STORE_URL", "DATABASE_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("notionsync")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "notionsync"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("notion.page_size", d.Notion.PageSize)
	v.SetDefault("notion.call_delay", d.Notion.CallDelay)
	v.SetDefault("notion.timeout", d.Notion.Timeout)
	v.SetDefault("notion.max_attempts", d.Notion.MaxAttempts)
	v.SetDefault("notion.base_delay", d.Notion.BaseDelay)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.url", "")
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.call_delay", d.Store.CallDelay)
	v.SetDefault("store.max_attempts", d.Store.MaxAttempts)
	v.SetDefault("store.base_delay", d.Store.BaseDelay)

	v.SetDefault("sync.source", d.Sync.Source)
	v.SetDefault("sync.lookback", d.Sync.Lookback)
	v.SetDefault("sync.error_alert_ratio", d.Sync.ErrorAlertRatio)
	v.SetDefault("sync.required", d.Sync.Required)

	v.SetDefault("daemon.interval", d.Daemon.Interval)
	v.SetDefault("daemon.failure_interval", d.Daemon.FailureInterval)

	v.SetDefault("alerts.enabled", d.Alerts.Enabled)
	v.SetDefault("alerts.database_id", "")
	v.SetDefault("alerts.min_level", d.Alerts.MinLevel)
	v.SetDefault("alerts.service", d.Alerts.Service)
	v.SetDefault("alerts.environment", d.Alerts.Environment)
	v.SetDefault("alerts.timeout", d.Alerts.Timeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.events", false)
	v.SetDefault("vocabulary.file", "")
	v.SetDefault("vocabulary.watch", false)
	v.SetDefault("lock_file", d.LockFile)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Notion.Token == "" {
		add("notion.token is required (or set NOTION_TOKEN)")
	}
	if c.Notion.DatabaseID == "" {
		add("notion.database_id is required")
	}
	if c.Notion.PageSize < 1 || c.Notion.PageSize > 100 {
		add("notion.page_size must be between 1 and 100, got %d", c.Notion.PageSize)
	}
	if c.Notion.MaxAttempts < 1 {
		add("notion.max_attempts must be at least 1")
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.URL == "" {
			add("store.url is required for the postgres driver (or set DATABASE_URL)")
		}
	case DriverSQLite:
		if c.Store.Path == "" {
			add("store.path is required for the sqlite driver")
		}
	default:
		add("store.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Store.Driver)
	}
	if c.Store.MaxAttempts < 1 {
		add("store.max_attempts must be at least 1")
	}

	if c.Sync.Source == "" {
		add("sync.source cannot be empty")
	}
	if c.Sync.Lookback < 0 {
		add("sync.lookback cannot be negative")
	}
	if c.Sync.ErrorAlertRatio < 0 || c.Sync.ErrorAlertRatio > 1 {
		add("sync.error_alert_ratio must be between 0 and 1, got %v", c.Sync.ErrorAlertRatio)
	}
	for _, f := range c.Sync.Required {
		if !record.IsField(f) {
			add("sync.required: unknown field %q", f)
		}
	}

	if c.Daemon.Interval <= 0 {
		add("daemon.interval must be positive")
	}

	if c.Alerts.Enabled {
		if c.Alerts.DatabaseID == "" {
			add("alerts.database_id is required when alerts are enabled")
		}
		if _, err := observe.ParseLevel(c.Alerts.MinLevel); err != nil {
			add("alerts.min_level: %v", err)
		}
	}
	if _, err := observe.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}

	return errors.Join(errs...)
}

// NotionClient returns the notion.Client configuration.
func (c *Config) NotionClient() notion.Config {
	n := notion.DefaultConfig()
	n.Token = c.Notion.Token
	n.DatabaseID = c.Notion.DatabaseID
	n.PageSize = c.Notion.PageSize
	n.CallDelay = c.Notion.CallDelay
	n.Timeout = c.Notion.Timeout
	n.Retry.MaxAttempts = c.Notion.MaxAttempts
	n.Retry.BaseDelay = c.Notion.BaseDelay
	n.Properties = c.Notion.Properties
	n.Alerts = c.Notion.AlertProperties
	if c.Alerts.Enabled {
		n.AlertsDatabaseID = c.Alerts.DatabaseID
	}
	return n
}

// StoreRetry returns the retry policy and pacer for store calls.
func (c *Config) StoreRetry() (retry.Policy, *retry.Pacer) {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.Store.MaxAttempts
	p.BaseDelay = c.Store.BaseDelay
	return p, retry.NewPacer(c.Store.CallDelay)
}

// SyncOrchestrator returns the orchestrator configuration.
func (c *Config) SyncOrchestrator() *notionsync.Config {
	return &notionsync.Config{
		Source:          c.Sync.Source,
		Lookback:        c.Sync.Lookback,
		ErrorAlertRatio: c.Sync.ErrorAlertRatio,
		Required:        c.Sync.Required,
	}
}

// DaemonLoop returns the loop configuration.
func (c *Config) DaemonLoop() *daemon.Config {
	cfg := daemon.DefaultConfig()
	cfg.Interval = c.Daemon.Interval
	cfg.FailureInterval = c.Daemon.FailureInterval
	return cfg
}
