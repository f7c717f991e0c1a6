// Package config provides configuration management for AgentDeck.
//
// Configuration is loaded in the following order (later sources override
// earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./config.yaml, ./configs/config.yaml,
//     ~/.agentdeck/config.yaml, /etc/agentdeck/config.yaml)
//  3. .env files
//  4. Environment variables (AD_ prefix)
//
// Environment variables use the AD_ prefix with underscores for nested
// keys, e.g. AD_GATEWAY_URL, AD_SERVER_PORT, AD_CACHE_STALE_AFTER.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for AgentDeck.
type Config struct {
	// Server contains the dashboard HTTP server configuration
	Server ServerConfig `mapstructure:"server"`

	// Gateway contains the remote data store connection settings
	Gateway GatewayConfig `mapstructure:"gateway"`

	// Cache contains freshness and refresh tuning
	Cache CacheConfig `mapstructure:"cache"`

	// Security contains rate limiting and CORS settings
	Security SecurityConfig `mapstructure:"security"`

	// Integrations points at the integration catalog file
	Integrations IntegrationsConfig `mapstructure:"integrations"`

	// Dev contains settings for the local dev gateway
	Dev DevConfig `mapstructure:"dev"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address (default: 0.0.0.0)
	Host string `mapstructure:"host"`

	// Port is the server listen port (default: 8090)
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug enables debug logging
	Debug bool `mapstructure:"debug"`
}

// GatewayConfig contains the remote data store connection settings.
// The key is the store-issued JWT credential; it is supplied at deploy
// time and never checked into configuration files.
type GatewayConfig struct {
	URL     string        `mapstructure:"url"`
	Key     string        `mapstructure:"key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig tunes the query cache and refresh controller.
type CacheConfig struct {
	// StaleAfter is the freshness window for cached query results
	StaleAfter time.Duration `mapstructure:"stale_after"`

	// RefreshInterval is the background refetch interval for mounted keys
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	// LivePulse is how long the per-entity live flag stays set
	LivePulse time.Duration `mapstructure:"live_pulse"`

	// SweepInterval is how often the log retention sweep runs
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// SecurityConfig contains rate limiting and CORS settings.
type SecurityConfig struct {
	// RateLimit is the maximum requests per second per client
	RateLimit int `mapstructure:"rate_limit"`

	// AllowedOrigins are the CORS allowed origins
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// IntegrationsConfig points at the integration catalog.
type IntegrationsConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
}

// DevConfig contains settings for the local dev gateway.
type DevConfig struct {
	// Listen is the dev gateway bind address
	Listen string `mapstructure:"listen"`

	// Database is the sqlite database path (":memory:" for ephemeral)
	Database string `mapstructure:"database"`

	// Simulate enables the background activity simulator
	Simulate bool `mapstructure:"simulate"`

	// SimulateInterval is the tick between simulated activity bursts
	SimulateInterval time.Duration `mapstructure:"simulate_interval"`
}

var cfg *Config

// Load reads configuration from a file and environment variables.
// If cfgFile is empty, it searches for config.yaml in standard locations.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.agentdeck")
		v.AddConfigPath("/etc/agentdeck")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("AD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug", false)

	v.SetDefault("gateway.url", "http://localhost:9910")
	v.SetDefault("gateway.key", "")
	v.SetDefault("gateway.timeout", "30s")

	v.SetDefault("cache.stale_after", "10s")
	v.SetDefault("cache.refresh_interval", "30s")
	v.SetDefault("cache.live_pulse", "3s")
	v.SetDefault("cache.sweep_interval", "24h")

	v.SetDefault("security.rate_limit", 100)
	v.SetDefault("security.allowed_origins", []string{"*"})

	v.SetDefault("integrations.catalog_path", "./integrations.yaml")

	v.SetDefault("dev.listen", "localhost:9910")
	v.SetDefault("dev.database", "agentdeck-dev.db")
	v.SetDefault("dev.simulate", true)
	v.SetDefault("dev.simulate_interval", "5s")
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Gateway.URL == "" {
		return fmt.Errorf("gateway url is required")
	}

	if cfg.Cache.StaleAfter <= 0 {
		return fmt.Errorf("cache stale_after must be positive")
	}

	if cfg.Cache.RefreshInterval <= 0 {
		return fmt.Errorf("cache refresh_interval must be positive")
	}

	return nil
}

// Get returns the last loaded configuration.
func Get() *Config {
	return cfg
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
