package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Platform PlatformConfig `yaml:"platform"`
	Radar    RadarConfig    `yaml:"radar"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig holds the cron specs for the periodic jobs.
type ScheduleConfig struct {
	Snapshot  string `yaml:"snapshot"`
	LiveCache string `yaml:"live_cache"`
	Metadata  string `yaml:"metadata"`
	Discovery string `yaml:"discovery"`
}

// PlatformConfig configures the upstream API client.
type PlatformConfig struct {
	GamesAPI    string `yaml:"games_api"`
	Timeout     string `yaml:"timeout"`
	MaxAttempts int    `yaml:"max_attempts"`
	RetryWait   string `yaml:"retry_wait"`
}

// ParseTimeout returns the request timeout as time.Duration.
func (p PlatformConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 12 * time.Second
	}
	return d
}

// ParseRetryWait returns the base retry delay as time.Duration.
func (p PlatformConfig) ParseRetryWait() time.Duration {
	d, err := time.ParseDuration(p.RetryWait)
	if err != nil {
		return 250 * time.Millisecond
	}
	return d
}

// RadarConfig configures trend derivation and discovery.
type RadarConfig struct {
	DiscoveryMax  int     `yaml:"discovery_max"`
	AlertMinDZ    float64 `yaml:"alert_min_dz"`
	AlertMinVotes int64   `yaml:"alert_min_votes"`
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./uniradar.db"},
		Schedule: ScheduleConfig{
			Snapshot:  "0 * * * *",
			LiveCache: "*/10 * * * *",
			Metadata:  "10 3 * * *",
			Discovery: "5 * * * *",
		},
		Platform: PlatformConfig{
			Timeout:     "12s",
			MaxAttempts: 3,
			RetryWait:   "250ms",
		},
		Radar: RadarConfig{
			DiscoveryMax:  250,
			AlertMinDZ:    8,
			AlertMinVotes: 0,
		},
		Alerts: AlertsConfig{},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UNIRADAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("UNIRADAR_GAMES_API"); v != "" {
		cfg.Platform.GamesAPI = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}
