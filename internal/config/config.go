package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	HTTP       HTTPConfig       `yaml:"http"`
	Admin      AdminConfig      `yaml:"admin"`
	Webhooks   WebhooksConfig   `yaml:"webhooks"`
	Lanes      LanesConfig      `yaml:"lanes"`
	Retry      RetryConfig      `yaml:"retry"`
	Guard      GuardConfig      `yaml:"guard"`
	Google     GoogleConfig     `yaml:"google"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Tenants    TenantsConfig    `yaml:"tenants"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

// AdminConfig protects the operator endpoints (dead-letter, audit, exports).
type AdminConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []AdminAPIKey  `yaml:"api_keys"`
	RateLimit    RateLimitLimit `yaml:"rate_limit"`
}

type AdminAPIKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type RateLimitLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// WebhooksConfig carries per-source inbound settings.
type WebhooksConfig struct {
	PipelineSecret string `yaml:"pipeline_secret"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

// LaneConfig bounds one source lane of the dispatcher.
type LaneConfig struct {
	Workers int     `yaml:"workers"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type LanesConfig struct {
	Chat     LaneConfig `yaml:"chat"`
	Pipeline LaneConfig `yaml:"pipeline"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type GuardConfig struct {
	DedupWindow time.Duration `yaml:"dedup_window"`
	IPWindow    time.Duration `yaml:"ip_window"`
	IPLimit     int           `yaml:"ip_limit"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

type AlertsConfig struct {
	TelegramToken  string  `yaml:"telegram_token"`
	TelegramChatID int64   `yaml:"telegram_chat_id"`
	RatePerMinute  float64 `yaml:"rate_per_minute"`
}

type TenantsConfig struct {
	FilePath        string        `yaml:"file_path"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; config values reference it through ${VAR} expansion.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expanded, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Google.CredentialsFile == "" {
		return errors.New("google credentials file is required")
	}
	if c.Admin.Enabled && len(c.Admin.APIKeys) == 0 {
		return errors.New("admin auth enabled but no api keys configured")
	}
	if c.Retry.BackoffFactor < 0 {
		return errors.New("retry backoff factor must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Admin.HeaderAPIKey == "" {
		c.Admin.HeaderAPIKey = "x-api-key"
	}
	if c.Webhooks.MaxBodyBytes == 0 {
		c.Webhooks.MaxBodyBytes = 1 << 20
	}

	// Lane defaults: chat is narrower and faster, pipeline wider and slower.
	if c.Lanes.Chat.Workers == 0 {
		c.Lanes.Chat.Workers = 2
	}
	if c.Lanes.Chat.RPS == 0 {
		c.Lanes.Chat.RPS = 5
	}
	if c.Lanes.Pipeline.Workers == 0 {
		c.Lanes.Pipeline.Workers = 4
	}
	if c.Lanes.Pipeline.RPS == 0 {
		c.Lanes.Pipeline.RPS = 2
	}
	if c.Lanes.Chat.Burst == 0 {
		c.Lanes.Chat.Burst = 5
	}
	if c.Lanes.Pipeline.Burst == 0 {
		c.Lanes.Pipeline.Burst = 5
	}

	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 5
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = 2 * time.Second
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = time.Minute
	}
	if c.Retry.BackoffFactor == 0 {
		c.Retry.BackoffFactor = 2
	}

	if c.Guard.DedupWindow == 0 {
		c.Guard.DedupWindow = 30 * time.Second
	}
	if c.Guard.IPWindow == 0 {
		c.Guard.IPWindow = time.Minute
	}
	if c.Guard.IPLimit == 0 {
		c.Guard.IPLimit = 120
	}

	if c.Tenants.RefreshInterval == 0 {
		c.Tenants.RefreshInterval = 5 * time.Minute
	}
	if c.Alerts.RatePerMinute == 0 {
		c.Alerts.RatePerMinute = 2
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
