// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Store   StoreConfig   `mapstructure:"store"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Quota   QuotaConfig   `mapstructure:"quota"`
	License LicenseConfig `mapstructure:"license"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite", "postgres".
	Backend string `mapstructure:"backend"`
	// Path is the database file for the sqlite backend.
	Path string `mapstructure:"path"`
	// DSN is the connection string for the postgres backend.
	DSN string `mapstructure:"dsn"`
	// Table is the postgres table name.
	Table string `mapstructure:"table"`
}

// FetchConfig governs the prefix fetcher.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// CacheConfig tunes the date cache TTLs and bounds.
type CacheConfig struct {
	PositiveTTLHours int `mapstructure:"positive_ttl_hours"`
	NegativeTTLHours int `mapstructure:"negative_ttl_hours"`
	MaxAgeDays       int `mapstructure:"max_age_days"`
	MaxEntries       int `mapstructure:"max_entries"`
	SweepHours       int `mapstructure:"sweep_hours"`
}

// QuotaConfig sets the free-tier daily allowance.
type QuotaConfig struct {
	DailyLimit int `mapstructure:"daily_limit"`
}

// LicenseConfig points at the verification service.
type LicenseConfig struct {
	VerifyURL       string `mapstructure:"verify_url"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	RevalidateHours int    `mapstructure:"revalidate_hours"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STALENESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.path", "staleness.db")
	v.SetDefault("store.table", "staleness_kv")
	v.SetDefault("fetch.user_agent", "staleness/1.0")
	v.SetDefault("fetch.timeout_seconds", 7)
	v.SetDefault("fetch.max_body_bytes", 64*1024)
	v.SetDefault("cache.positive_ttl_hours", 24)
	v.SetDefault("cache.negative_ttl_hours", 6)
	v.SetDefault("cache.max_age_days", 7)
	v.SetDefault("cache.max_entries", 5000)
	v.SetDefault("cache.sweep_hours", 6)
	v.SetDefault("quota.daily_limit", 10)
	v.SetDefault("license.timeout_seconds", 10)
	v.SetDefault("license.revalidate_hours", 24)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must be set for the sqlite backend")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, sqlite, postgres")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0")
	}
	if c.Cache.PositiveTTLHours <= 0 || c.Cache.NegativeTTLHours <= 0 {
		return fmt.Errorf("cache TTLs must be > 0")
	}
	if c.Cache.NegativeTTLHours > c.Cache.PositiveTTLHours {
		return fmt.Errorf("cache.negative_ttl_hours must not exceed cache.positive_ttl_hours")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be > 0")
	}
	if c.Quota.DailyLimit <= 0 {
		return fmt.Errorf("quota.daily_limit must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout converts the fetch timeout to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// ServerTimeout converts the request timeout to a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
