package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Collector CollectorConfig `mapstructure:"collector"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	APIKey         string   `mapstructure:"api_key"`
	JobTTLHours    int      `mapstructure:"job_ttl_hours"`
	MaxJobs        int      `mapstructure:"max_jobs"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// BacktestConfig holds engine defaults.
type BacktestConfig struct {
	Period         string        `mapstructure:"period"`
	InitialCapital float64       `mapstructure:"initial_capital"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// CollectorConfig selects and tunes the history provider.
type CollectorConfig struct {
	Provider   string        `mapstructure:"provider"` // yahoo, eastmoney, binance or csv
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	MaxRetries int           `mapstructure:"max_retries"`
	CSVDir     string        `mapstructure:"csv_dir"`
	CacheDSN   string        `mapstructure:"cache_dsn"` // empty disables the bar cache
}

// NotifyConfig lists endpoints told about finished asynchronous jobs.
type NotifyConfig struct {
	Webhooks []WebhookConfig `mapstructure:"webhooks"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// ArchiveConfig controls where finished results are stored.
type ArchiveConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from file on top of Defaults. An empty path
// yields the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Support environment variable overrides
	v.SetEnvPrefix("TRADEMATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every default with viper so that environment
// overrides apply to keys absent from the file.
func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.api_key", d.Server.APIKey)
	v.SetDefault("server.job_ttl_hours", d.Server.JobTTLHours)
	v.SetDefault("server.max_jobs", d.Server.MaxJobs)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("backtest.period", d.Backtest.Period)
	v.SetDefault("backtest.initial_capital", d.Backtest.InitialCapital)
	v.SetDefault("backtest.timeout", d.Backtest.Timeout)
	v.SetDefault("collector.provider", d.Collector.Provider)
	v.SetDefault("collector.base_url", d.Collector.BaseURL)
	v.SetDefault("collector.timeout", d.Collector.Timeout)
	v.SetDefault("collector.rate_per_sec", d.Collector.RatePerSec)
	v.SetDefault("collector.max_retries", d.Collector.MaxRetries)
	v.SetDefault("collector.csv_dir", d.Collector.CSVDir)
	v.SetDefault("collector.cache_dsn", d.Collector.CacheDSN)
	v.SetDefault("archive.enabled", d.Archive.Enabled)
	v.SetDefault("archive.type", d.Archive.Type)
	v.SetDefault("archive.path", d.Archive.Path)
	v.SetDefault("archive.s3.bucket", d.Archive.S3.Bucket)
	v.SetDefault("archive.s3.endpoint", d.Archive.S3.Endpoint)
	v.SetDefault("archive.s3.region", d.Archive.S3.Region)
	v.SetDefault("archive.s3.access_key", d.Archive.S3.AccessKey)
	v.SetDefault("archive.s3.secret_key", d.Archive.S3.SecretKey)
	v.SetDefault("archive.s3.prefix", d.Archive.S3.Prefix)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("notify.webhooks", d.Notify.Webhooks)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			JobTTLHours:    1,
			MaxJobs:        100,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Backtest: BacktestConfig{
			Period:         string(collector.DefaultPeriod),
			InitialCapital: 10000,
			Timeout:        2 * time.Minute,
		},
		Collector: CollectorConfig{
			Provider:   "yahoo",
			Timeout:    10 * time.Second,
			RatePerSec: 2,
			MaxRetries: 3,
			CSVDir:     "data",
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Type:    "localfs",
			Path:    "results",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxJobs < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_jobs must be positive, got %d", c.Server.MaxJobs))
	}

	// Backtest validation
	if _, err := collector.ParsePeriod(c.Backtest.Period); err != nil {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest.period: %w", err))
	}
	if c.Backtest.InitialCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be positive, got %v", c.Backtest.InitialCapital))
	}

	// Collector validation
	switch c.Collector.Provider {
	case "yahoo", "eastmoney", "binance":
		if c.Collector.RatePerSec < 0 || c.Collector.MaxRetries < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("rate_per_sec and max_retries cannot be negative"))
		}
	case "csv":
		if c.Collector.CSVDir == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("csv_dir required when provider is csv"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown collector provider %q", c.Collector.Provider))
	}

	// Archive validation
	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "localfs":
			if c.Archive.Path == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive path required when type is localfs"))
			}
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive s3 bucket required when type is s3"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown archive type %q", c.Archive.Type))
		}
	}

	for i, w := range c.Notify.Webhooks {
		if w.URL == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("notify.webhooks[%d]: url required", i))
		}
	}

	return nil
}
