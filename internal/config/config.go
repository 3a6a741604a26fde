// Package config loads relock configuration from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (RELOCK_LOG_LEVEL, ...).
const EnvPrefix = "RELOCK"

// Config holds all application configuration
type Config struct {
	Repo     RepoConfig     `mapstructure:"repo"`
	Log      LogConfig      `mapstructure:"log"`
	Exec     ExecConfig     `mapstructure:"exec"`
	Registry RegistryConfig `mapstructure:"registry"`
}

// RepoConfig describes the working tree relock operates on.
type RepoConfig struct {
	Dir string `mapstructure:"dir"` // Repository root; lock file paths are relative to it
}

// LogConfig holds logging configuration
type LogConfig struct {
	Format string `mapstructure:"format"` // "json" or "text"
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
}

// ExecConfig controls how the compiler is executed.
type ExecConfig struct {
	Shell        string            `mapstructure:"shell"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	EnvAllowlist []string          `mapstructure:"env_allowlist"` // Host variables passed through
	ExtraEnv     map[string]string `mapstructure:"extra_env"`
}

// RegistryConfig holds credential sources for private package indexes.
type RegistryConfig struct {
	Netrc     string     `mapstructure:"netrc"` // Path to a netrc file; empty means ~/.netrc
	HostRules []HostRule `mapstructure:"host_rules"`
}

// HostRule supplies credentials for a registry host.
// MatchHost is either an exact host name or a "*.example.com" suffix pattern.
type HostRule struct {
	MatchHost string `mapstructure:"match_host"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// DefaultEnvAllowlist lists the host variables the compiler sees by default.
var DefaultEnvAllowlist = []string{"HOME", "PATH", "LANG", "LC_ALL", "PIP_CACHE_DIR", "VIRTUAL_ENV"}

// Load reads configuration. An empty path searches the default locations;
// a missing default config file is not an error, a missing explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("repo.dir", ".")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")
	v.SetDefault("exec.shell", "/bin/sh")
	v.SetDefault("exec.timeout", 15*time.Minute)
	v.SetDefault("exec.env_allowlist", DefaultEnvAllowlist)
	v.SetDefault("registry.netrc", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relock")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/relock")
		v.AddConfigPath("/etc/relock/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	// Environment variables override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values viper cannot type-check on its own.
func (c *Config) Validate() error {
	if c.Exec.Timeout < 0 {
		return fmt.Errorf("exec.timeout must not be negative, got %s", c.Exec.Timeout)
	}
	if c.Exec.Shell == "" {
		return fmt.Errorf("exec.shell is required")
	}
	for i, rule := range c.Registry.HostRules {
		if rule.MatchHost == "" {
			return fmt.Errorf("registry.host_rules[%d]: match_host is required", i)
		}
	}
	return nil
}
