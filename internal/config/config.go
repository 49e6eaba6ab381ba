package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Bus      BusConfig      `yaml:"bus"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// UnmarshalYAML accepts duration values like "30s" or "24h".
func (c *AuthConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TokenDuration string `yaml:"token_duration"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.JWTSecret = raw.JWTSecret

	var err error
	if c.TokenDuration, err = parseDuration("token_duration", raw.TokenDuration); err != nil {
		return err
	}
	return nil
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// IngestConfig holds death-log ingestion settings
type IngestConfig struct {
	PollInterval        time.Duration `yaml:"poll_interval"`
	ProgressInterval    time.Duration `yaml:"progress_interval"`
	InitialRefreshDelay time.Duration `yaml:"initial_refresh_delay"`
	DedupWindow         int           `yaml:"dedup_window"`
	DevMode             bool          `yaml:"dev_mode"`
	DevDataDir          string        `yaml:"dev_data_dir"`
}

// UnmarshalYAML accepts duration values like "30s" or "5m".
func (c *IngestConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		PollInterval        string `yaml:"poll_interval"`
		ProgressInterval    string `yaml:"progress_interval"`
		InitialRefreshDelay string `yaml:"initial_refresh_delay"`
		DedupWindow         int    `yaml:"dedup_window"`
		DevMode             bool   `yaml:"dev_mode"`
		DevDataDir          string `yaml:"dev_data_dir"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.DedupWindow = raw.DedupWindow
	c.DevMode = raw.DevMode
	c.DevDataDir = raw.DevDataDir

	var err error
	if c.PollInterval, err = parseDuration("poll_interval", raw.PollInterval); err != nil {
		return err
	}
	if c.ProgressInterval, err = parseDuration("progress_interval", raw.ProgressInterval); err != nil {
		return err
	}
	if c.InitialRefreshDelay, err = parseDuration("initial_refresh_delay", raw.InitialRefreshDelay); err != nil {
		return err
	}
	return nil
}

// BusConfig holds embedded NATS settings
type BusConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// parseDuration parses a Go duration string. Empty means unset, so the
// caller's default applies.
func parseDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Set defaults
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/killfeed/killfeed.db"
	}
	if cfg.Ingest.PollInterval == 0 {
		cfg.Ingest.PollInterval = 300 * time.Second
	}
	if cfg.Ingest.ProgressInterval == 0 {
		cfg.Ingest.ProgressInterval = 30 * time.Second
	}
	if cfg.Ingest.InitialRefreshDelay == 0 {
		cfg.Ingest.InitialRefreshDelay = 30 * time.Second
	}
	if cfg.Ingest.DedupWindow == 0 {
		cfg.Ingest.DedupWindow = 5000
	}
	if cfg.Ingest.DevDataDir == "" {
		cfg.Ingest.DevDataDir = "./dev_data"
	}
	if cfg.Bus.Port == 0 {
		cfg.Bus.Port = 4222
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 50
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 30
	}
	// Note: Logging.File intentionally has no default - empty means stderr only

	// Auth defaults
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}

	// Environment overrides
	if v := os.Getenv("KILLFEED_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("KILLFEED_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("KILLFEED_DEV_MODE"); v != "" {
		cfg.Ingest.DevMode = v == "1" || strings.EqualFold(v, "true")
	}

	return &cfg, nil
}
