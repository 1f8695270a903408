package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	SES      SESConfig      `yaml:"ses"`
	Msg91    Msg91Config    `yaml:"msg91"`
	Report   ReportConfig   `yaml:"report"`
	Registry RegistryConfig `yaml:"registry"`
	SendLog  SendLogConfig  `yaml:"sendlog"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key" env:"CAMPAIGND_API_KEY"`
	UploadDir      string        `yaml:"upload_dir"`
	OutputDir      string        `yaml:"output_dir"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

// SESConfig contains settings for the transactional (per-recipient) provider
type SESConfig struct {
	Region          string            `yaml:"region" env:"SES_REGION"`
	FromEmail       string            `yaml:"from_email" env:"SES_FROM_EMAIL"`
	ConfigSet       string            `yaml:"config_set" env:"SES_CONFIG_SET"`
	SubjectTemplate string            `yaml:"subject_template"`
	Template        string            `yaml:"template"`      // built-in HTML document name
	InlineImages    []string          `yaml:"inline_images"` // file paths, exposed as cid:image1..N
	Variables       map[string]string `yaml:"variables"`     // global template variables
	Concurrency     int               `yaml:"concurrency"`
	ThrottleEvery   int               `yaml:"throttle_every"`
	ThrottlePause   time.Duration     `yaml:"throttle_pause"`
}

// Msg91Config contains settings for the batch provider
type Msg91Config struct {
	AuthKey    string        `yaml:"auth_key" env:"MSG91_AUTH_KEY"`
	FromEmail  string        `yaml:"from_email" env:"MSG91_FROM_EMAIL"`
	Domain     string        `yaml:"domain" env:"MSG91_DOMAIN"`
	TemplateID string        `yaml:"template_id" env:"MSG91_TEMPLATE_ID"`
	Endpoint   string        `yaml:"endpoint"`
	BatchSize  int           `yaml:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ReportConfig contains delivery-report reconciliation settings
type ReportConfig struct {
	Bucket     string `yaml:"bucket" env:"SES_EVENT_BUCKET"`
	Region     string `yaml:"region"`
	PrefixRoot string `yaml:"prefix_root"` // day partitions live under <root>/YYYY/MM/DD/
}

// RegistryConfig contains job registry retention settings
type RegistryConfig struct {
	Retention     time.Duration `yaml:"retention"`      // how long terminal jobs are kept (0 = forever)
	SweepInterval time.Duration `yaml:"sweep_interval"` // how often to run eviction
}

// SendLogConfig contains the persistent send log settings
type SendLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IPs/CIDRs permitted to scrape; empty allows all
}

// Load loads configuration from a YAML file, then applies environment
// overrides for credential fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = "uploads"
	}
	if c.Server.OutputDir == "" {
		c.Server.OutputDir = "generated"
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 32 << 20 // 32MB
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.SES.Region == "" {
		c.SES.Region = "ap-south-1"
	}
	if c.SES.Concurrency == 0 {
		c.SES.Concurrency = 14
	}
	if c.SES.ThrottleEvery == 0 {
		c.SES.ThrottleEvery = 14
	}
	if c.SES.ThrottlePause == 0 {
		c.SES.ThrottlePause = time.Second
	}

	if c.Msg91.Endpoint == "" {
		c.Msg91.Endpoint = "https://control.msg91.com/api/v5/email/send"
	}
	if c.Msg91.BatchSize == 0 {
		c.Msg91.BatchSize = 100
	}
	if c.Msg91.BatchDelay == 0 {
		c.Msg91.BatchDelay = 2 * time.Second
	}
	if c.Msg91.Timeout == 0 {
		c.Msg91.Timeout = 60 * time.Second
	}

	if c.Report.Region == "" {
		c.Report.Region = c.SES.Region
	}
	if c.Report.PrefixRoot == "" {
		c.Report.PrefixRoot = "ses"
	}

	if c.Registry.Retention == 0 {
		c.Registry.Retention = 24 * time.Hour
	}
	if c.Registry.SweepInterval == 0 {
		c.Registry.SweepInterval = 10 * time.Minute
	}

	if c.SendLog.Path == "" {
		c.SendLog.Path = "campaignd.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	if c.Msg91.BatchSize < 1 {
		return fmt.Errorf("msg91 batch_size must be positive, got %d", c.Msg91.BatchSize)
	}
	if c.SES.Concurrency < 1 {
		return fmt.Errorf("ses concurrency must be positive, got %d", c.SES.Concurrency)
	}
	if c.SES.ThrottleEvery < 1 {
		return fmt.Errorf("ses throttle_every must be positive, got %d", c.SES.ThrottleEvery)
	}
	return nil
}
