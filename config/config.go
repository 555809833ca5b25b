package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Quoteflow QuoteflowConfig          `yaml:"quoteflow"`
	Providers map[string]ProviderLimit `yaml:"providers"`
	Fetcher   FetcherConfig            `yaml:"fetcher"`
	Offline   OfflineConfig            `yaml:"offline"`
	Storage   StorageConfig            `yaml:"storage"`
	Telemetry TelemetryConfig          `yaml:"telemetry"`
	Logging   LoggingConfig            `yaml:"logging"`
}

type QuoteflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ProviderLimit carries the per-provider call budget. A provider missing
// from the file falls back to DefaultProviderLimits rather than failing.
type ProviderLimit struct {
	PerSecond int    `yaml:"per_second"`
	PerMinute int    `yaml:"per_minute"`
	Reserve   int    `yaml:"reserve"`
	BaseURL   string `yaml:"base_url,omitempty"`
}

type FetcherConfig struct {
	MaxWorkers int            `yaml:"max_workers"`
	Timeout    time.Duration  `yaml:"timeout"`
	Retry      RetryConfig    `yaml:"retry"`
	Pacing     PacingConfig   `yaml:"pacing"`
	Pool       ConnectionPool `yaml:"connection_pool"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      time.Duration `yaml:"jitter"`
}

// PacingConfig smooths raw HTTP request bursts per provider client,
// independent of the budget limiter.
type PacingConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPool struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// OfflineConfig keeps the acquisition layer deterministic in CI: when
// enabled, prices are served from the JSON fixture and no network adapter
// runs. QF_OFFLINE=1 and QF_FIXTURE override the file values.
type OfflineConfig struct {
	Enabled     bool   `yaml:"enabled"`
	FixturePath string `yaml:"fixture_path"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type TelemetryConfig struct {
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
	ReportInterval time.Duration    `yaml:"report_interval"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// DefaultProviderLimits documents the numeric defaults used when a provider
// has no block in the configuration file.
var DefaultProviderLimits = map[string]ProviderLimit{
	"finnhub": {PerSecond: 30, PerMinute: 60, Reserve: 2},
	"yahoo":   {PerSecond: 5, PerMinute: 20, Reserve: 2},
	"stooq":   {PerSecond: 2, PerMinute: 10, Reserve: 1},
	"binance": {PerSecond: 10, PerMinute: 100, Reserve: 2},
}

// LimitFor returns the configured budget for a provider, filling missing or
// zero fields from DefaultProviderLimits.
func (c *Config) LimitFor(name string) ProviderLimit {
	def := DefaultProviderLimits[name]
	lim, ok := c.Providers[name]
	if !ok {
		return def
	}
	if lim.PerSecond <= 0 {
		lim.PerSecond = def.PerSecond
	}
	if lim.PerMinute <= 0 {
		lim.PerMinute = def.PerMinute
	}
	if lim.Reserve < 0 {
		lim.Reserve = def.Reserve
	}
	if lim.BaseURL == "" {
		lim.BaseURL = def.BaseURL
	}
	return lim
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Fetcher: FetcherConfig{
			MaxWorkers: 4,
			Timeout:    8 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   250 * time.Millisecond,
				MaxDelay:    4 * time.Second,
				Jitter:      250 * time.Millisecond,
			},
			Pool: ConnectionPool{
				MaxIdleConns:    32,
				MaxConnsPerHost: 16,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{ReportInterval: 30 * time.Second},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment wins over the file for secrets and the offline switch.
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	if os.Getenv("QF_OFFLINE") == "1" {
		config.Offline.Enabled = true
	}
	if v := os.Getenv("QF_FIXTURE"); v != "" {
		config.Offline.FixturePath = v
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Quoteflow.Name == "" {
		return fmt.Errorf("quoteflow.name is required")
	}

	if cfg.Quoteflow.Version == "" {
		return fmt.Errorf("quoteflow.version is required")
	}

	if cfg.Fetcher.MaxWorkers <= 0 {
		return fmt.Errorf("fetcher.max_workers must be greater than 0")
	}
	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be greater than 0")
	}
	if cfg.Fetcher.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("fetcher.retry.max_attempts must be greater than 0")
	}

	// Reserve must leave usable budget in every window; this is a fatal
	// configuration error, not something the limiter tolerates at runtime.
	for name := range cfg.Providers {
		eff := cfg.LimitFor(name)
		if eff.Reserve >= eff.PerSecond || eff.Reserve >= eff.PerMinute {
			return fmt.Errorf("providers.%s: reserve %d must be below per_second %d and per_minute %d",
				name, eff.Reserve, eff.PerSecond, eff.PerMinute)
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
