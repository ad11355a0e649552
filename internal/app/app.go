// Package app wires configuration into a ready-to-use backtesting stack:
// history provider (optionally cached), backtester, result archive,
// metrics and HTTP server.
package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/newthinker/trademate/internal/api"
	"github.com/newthinker/trademate/internal/api/job"
	"github.com/newthinker/trademate/internal/backtest"
	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/collector/binance"
	"github.com/newthinker/trademate/internal/collector/cache"
	"github.com/newthinker/trademate/internal/collector/csvfile"
	"github.com/newthinker/trademate/internal/collector/eastmoney"
	"github.com/newthinker/trademate/internal/collector/yahoo"
	"github.com/newthinker/trademate/internal/config"
	log "github.com/newthinker/trademate/internal/logger"
	"github.com/newthinker/trademate/internal/metrics"
	"github.com/newthinker/trademate/internal/notifier"
	"github.com/newthinker/trademate/internal/notifier/webhook"
	"github.com/newthinker/trademate/internal/storage/archive"
	"go.uber.org/zap"
)

// App is the main application orchestrator
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Registry
	providers  *collector.Registry
	provider   collector.HistoryProvider
	backtester *backtest.Backtester
	results    *archive.Results
	notifiers  *notifier.Registry
	closers    []io.Closer
}

// New builds the stack described by cfg. The config is validated first.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = log.OrNop(logger)

	a := &App{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics.NewRegistry(),
		providers: collector.NewRegistry(),
	}

	a.providers.Register(yahoo.New(httpConfig(cfg.Collector, "yahoo"), logger))
	a.providers.Register(eastmoney.New(httpConfig(cfg.Collector, "eastmoney"), logger))
	a.providers.Register(binance.New(httpConfig(cfg.Collector, "binance"), logger))
	a.providers.Register(csvfile.New(cfg.Collector.CSVDir))

	provider, ok := a.providers.Get(cfg.Collector.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %v)", cfg.Collector.Provider, a.providers.Names())
	}

	if cfg.Collector.CacheDSN != "" {
		c, err := cache.New(cfg.Collector.CacheDSN, provider, a.metrics, logger)
		if err != nil {
			return nil, fmt.Errorf("opening bar cache: %w", err)
		}
		a.closers = append(a.closers, c)
		provider = c
	}
	a.provider = provider

	period, err := collector.ParsePeriod(cfg.Backtest.Period)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.backtester = backtest.New(provider,
		backtest.WithLogger(logger),
		backtest.WithMetrics(a.metrics),
		backtest.WithInitialCapital(cfg.Backtest.InitialCapital),
		backtest.WithDefaultPeriod(period),
	)

	if cfg.Archive.Enabled {
		store, err := newStorage(cfg.Archive)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		a.results = archive.NewResults(store)
	}

	a.notifiers, err = newNotifiers(cfg.Notify)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("trademate configured",
		zap.String("provider", provider.Name()),
		zap.Bool("cache", cfg.Collector.CacheDSN != ""),
		zap.Bool("archive", a.results != nil),
		zap.Strings("notifiers", a.notifiers.Names()),
		zap.String("default_period", string(period)),
	)
	return a, nil
}

func newNotifiers(cfg config.NotifyConfig) (*notifier.Registry, error) {
	reg := notifier.NewRegistry()
	for i, w := range cfg.Webhooks {
		name := w.Name
		if name == "" {
			name = fmt.Sprintf("webhook-%d", i+1)
		}
		hook, err := webhook.New(name, w.URL, w.Headers)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(hook); err != nil {
			return nil, fmt.Errorf("notify.webhooks[%d]: %w", i, err)
		}
	}
	return reg, nil
}

// httpConfig builds the settings for the named HTTP provider. base_url only
// applies to the selected provider.
func httpConfig(cfg config.CollectorConfig, name string) collector.Config {
	c := collector.Config{
		Timeout:    cfg.Timeout,
		RatePerSec: cfg.RatePerSec,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.Provider == name {
		c.BaseURL = cfg.BaseURL
	}
	return c
}

func newStorage(cfg config.ArchiveConfig) (archive.Storage, error) {
	switch cfg.Type {
	case "localfs":
		return archive.NewLocalFS(cfg.Path)
	case "s3":
		return archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}

// Backtester returns the configured backtester.
func (a *App) Backtester() *backtest.Backtester {
	return a.backtester
}

// Provider returns the history provider in use, including the cache layer.
func (a *App) Provider() collector.HistoryProvider {
	return a.provider
}

// Archive returns the result archive, or nil when archiving is disabled.
func (a *App) Archive() *archive.Results {
	return a.results
}

// Metrics returns the metrics registry.
func (a *App) Metrics() *metrics.Registry {
	return a.metrics
}

// Server builds the HTTP server around the backtester.
func (a *App) Server() (*api.Server, error) {
	srv := a.cfg.Server
	deps := api.Dependencies{
		Runner: a.backtester,
		Jobs:   job.NewStore(srv.MaxJobs, time.Duration(srv.JobTTLHours)*time.Hour),
	}
	if a.results != nil {
		deps.Archive = a.results
	}
	if a.notifiers.Len() > 0 {
		deps.Notifier = a.notifiers
	}
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		deps.Metrics = a.metrics
		metricsPath = a.cfg.Metrics.Path
	}

	return api.NewServer(api.Config{
		Host:           srv.Host,
		Port:           srv.Port,
		APIKey:         srv.APIKey,
		AllowedOrigins: srv.AllowedOrigins,
		MetricsPath:    metricsPath,
		JobTimeout:     a.cfg.Backtest.Timeout,
	}, deps, a.logger)
}

// Close releases the cache database and any other held resources.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
