// Package config loads application configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration. Environment variables override
// the YAML file; both override the built-in defaults.
type Config struct {
	GitHubToken string
	GitHubLogin string
	ListenAddr  string
	DBPath      string
	// ReviewLogDir is where plain-text review log files are written; empty
	// disables them.
	ReviewLogDir string
	LogFile      string
	LogLevel     string
	ContentTTL   time.Duration
}

// fileConfig mirrors Config for YAML decoding; the TTL is a duration string
// ("30m") rather than raw nanoseconds.
type fileConfig struct {
	GitHubToken  string `yaml:"github_token"`
	GitHubLogin  string `yaml:"github_login"`
	ListenAddr   string `yaml:"listen_addr"`
	DBPath       string `yaml:"db_path"`
	ReviewLogDir string `yaml:"review_log_dir"`
	LogFile      string `yaml:"log_file"`
	LogLevel     string `yaml:"log_level"`
	ContentTTL   string `yaml:"content_ttl"`
}

// HasGitHubCredentials returns true when both GitHubToken and GitHubLogin are
// non-empty. The composition root refuses to start without them since every
// review operation needs an authenticated identity.
func (c *Config) HasGitHubCredentials() bool {
	return c.GitHubToken != "" && c.GitHubLogin != ""
}

func defaults() *Config {
	return &Config{
		ListenAddr:   "127.0.0.1:8484",
		DBPath:       "reviewdeck.db",
		ReviewLogDir: "review-logs",
		LogLevel:     "info",
		ContentTTL:   time.Hour,
	}
}

// Load reads configuration from the YAML file at REVIEWDECK_CONFIG (skipped
// when unset or missing), then applies REVIEWDECK_* environment variables on
// top. Returns a validated Config.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("REVIEWDECK_CONFIG"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if v, ok := os.LookupEnv("REVIEWDECK_CONTENT_TTL"); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("REVIEWDECK_CONTENT_TTL has invalid duration %q: %w", v, err)
		}
		cfg.ContentTTL = ttl
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: expected debug, info, warn, or error", cfg.LogLevel)
	}

	return cfg, nil
}

// loadFile overlays cfg with values from a YAML config file. A missing file
// is an error only when the path was set explicitly, which it always is here.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	overlay := func(v string, dst *string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(fc.GitHubToken, &cfg.GitHubToken)
	overlay(fc.GitHubLogin, &cfg.GitHubLogin)
	overlay(fc.ListenAddr, &cfg.ListenAddr)
	overlay(fc.DBPath, &cfg.DBPath)
	overlay(fc.ReviewLogDir, &cfg.ReviewLogDir)
	overlay(fc.LogFile, &cfg.LogFile)
	overlay(fc.LogLevel, &cfg.LogLevel)

	if fc.ContentTTL != "" {
		ttl, err := time.ParseDuration(fc.ContentTTL)
		if err != nil {
			return fmt.Errorf("config file %s: content_ttl has invalid duration %q: %w", path, fc.ContentTTL, err)
		}
		cfg.ContentTTL = ttl
	}
	return nil
}

// applyEnv overlays cfg with REVIEWDECK_* environment variables.
func applyEnv(cfg *Config) {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	set("REVIEWDECK_GITHUB_TOKEN", &cfg.GitHubToken)
	set("REVIEWDECK_GITHUB_LOGIN", &cfg.GitHubLogin)
	set("REVIEWDECK_LISTEN_ADDR", &cfg.ListenAddr)
	set("REVIEWDECK_DB_PATH", &cfg.DBPath)
	set("REVIEWDECK_REVIEW_LOG_DIR", &cfg.ReviewLogDir)
	set("REVIEWDECK_LOG_FILE", &cfg.LogFile)
	set("REVIEWDECK_LOG_LEVEL", &cfg.LogLevel)
}
