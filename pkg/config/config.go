// Package config provides the configuration of a shopsync process.
//
// Configuration is a single Config structure organized into sections:
//   - Shopify: store credentials and API client tuning
//   - Warehouse: which warehouse to write to and how to connect
//   - Checkpoint: where sync watermarks are persisted
//   - Sync: resources, schedule, lookback, pagination and retry settings
//   - Logging, Metrics, Tracing: observability
//   - Notify: optional publishing of run results
//
// Example usage:
//
//	cfg, err := config.Load("shopsync.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"time"

	"github.com/ajitpratap0/shopsync/pkg/checkpoint"
	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/notify"
	"github.com/ajitpratap0/shopsync/pkg/paginator"
	"github.com/ajitpratap0/shopsync/pkg/shopify"
	"github.com/ajitpratap0/shopsync/pkg/warehouse"
)

// Config is the complete process configuration.
type Config struct {
	Shopify    shopify.Config           `mapstructure:"shopify" yaml:"shopify"`
	Warehouse  warehouse.Config         `mapstructure:"warehouse" yaml:"warehouse"`
	Checkpoint checkpoint.BackendConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
	Sync       SyncConfig               `mapstructure:"sync" yaml:"sync"`
	Logging    logger.Config            `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig            `mapstructure:"metrics" yaml:"metrics"`
	Tracing    TracingConfig            `mapstructure:"tracing" yaml:"tracing"`
	Notify     notify.KafkaConfig       `mapstructure:"notify" yaml:"notify"`
}

// SyncConfig controls what is synced and how.
type SyncConfig struct {
	// Source names the upstream system in the checkpoint document
	Source string `mapstructure:"source" yaml:"source"`
	// Resources lists the resources a run syncs, in order
	Resources []string `mapstructure:"resources" yaml:"resources"`
	// IntervalMinutes is the schedule period of the run command
	IntervalMinutes int `mapstructure:"interval_minutes" yaml:"interval_minutes"`
	// LookbackDays is the first-run watermark distance from now
	LookbackDays int `mapstructure:"lookback_days" yaml:"lookback_days"`
	// PageSize is the upstream page limit
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
	// Pagination is the default pagination strategy
	Pagination string `mapstructure:"pagination" yaml:"pagination"`
	// PaginationOverrides selects a strategy per resource
	PaginationOverrides map[string]string `mapstructure:"pagination_overrides" yaml:"pagination_overrides,omitempty"`
	// MaxPages bounds one resource fetch; zero means unbounded
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages"`
	// RetryAttempts is the total attempt count of retried operations
	RetryAttempts int `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	// RetryDelay is the linear backoff step
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// RunTimeout bounds a single run; zero means unbounded
	RunTimeout time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	resources := make([]string, len(models.DefaultResources))
	for i, r := range models.DefaultResources {
		resources[i] = r.String()
	}

	return &Config{
		Shopify: shopify.Config{
			APIVersion:      shopify.DefaultAPIVersion,
			RequestTimeout:  30 * time.Second,
			RateLimitPerSec: 2,
			RateBurst:       1,
		},
		Warehouse: warehouse.Config{
			Type: warehouse.TypeSnowflake,
			Pool: warehouse.PoolConfig{
				MaxOpenConns:    4,
				MaxIdleConns:    2,
				ConnMaxLifetime: 30 * time.Minute,
			},
		},
		Checkpoint: checkpoint.BackendConfig{
			Type: checkpoint.BackendFile,
			Path: "sync_state.json",
		},
		Sync: SyncConfig{
			Source:          "shopify",
			Resources:       resources,
			IntervalMinutes: 5,
			LookbackDays:    90,
			PageSize:        paginator.DefaultPageSize,
			Pagination:      string(paginator.StrategyTrailingID),
			RetryAttempts:   3,
			RetryDelay:      2 * time.Second,
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
		Tracing: TracingConfig{
			ServiceName: "shopsync",
			SampleRate:  1,
		},
		Notify: notify.KafkaConfig{
			Topic:    "shopsync.runs",
			ClientID: "shopsync",
		},
	}
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Shopify.ShopName == "" && c.Shopify.BaseURL == "" {
		return configError("shopify.shop_name is required")
	}
	if c.Shopify.AccessToken == "" {
		return configError("shopify.access_token is required")
	}
	if c.Sync.Source == "" {
		return configError("sync.source is required")
	}
	if _, err := c.SyncResources(); err != nil {
		return err
	}
	if c.Sync.IntervalMinutes <= 0 {
		return configError("sync.interval_minutes must be positive")
	}
	if c.Sync.LookbackDays < 0 {
		return configError("sync.lookback_days cannot be negative")
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > paginator.DefaultPageSize {
		return configError("sync.page_size must be between 1 and 250")
	}
	if _, err := c.PaginatorConfig(); err != nil {
		return err
	}
	if c.Sync.RetryAttempts < 1 {
		return configError("sync.retry_attempts must be at least 1")
	}
	if c.Sync.RetryDelay < 0 {
		return configError("sync.retry_delay cannot be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return configError("metrics.addr is required when metrics are enabled")
	}
	if c.Notify.Enabled && (len(c.Notify.Brokers) == 0 || c.Notify.Topic == "") {
		return configError("notify.brokers and notify.topic are required when notify is enabled")
	}
	return nil
}

// SyncResources parses Sync.Resources.
func (c *Config) SyncResources() ([]models.Resource, error) {
	if len(c.Sync.Resources) == 0 {
		return nil, configError("sync.resources must not be empty")
	}
	return ParseResources(c.Sync.Resources)
}

// ParseResources validates resource names and keeps their order.
func ParseResources(names []string) ([]models.Resource, error) {
	out := make([]models.Resource, 0, len(names))
	for _, name := range names {
		r, ok := models.ParseResource(name)
		if !ok {
			return nil, synerrors.Newf(synerrors.ErrorTypeConfig, "unknown resource %q", name)
		}
		out = append(out, r)
	}
	return out, nil
}

// PaginatorConfig translates the sync section into a paginator config.
func (c *Config) PaginatorConfig() (paginator.Config, error) {
	strategy, err := paginator.ParseStrategy(c.Sync.Pagination)
	if err != nil {
		return paginator.Config{}, synerrors.Wrap(err, synerrors.ErrorTypeConfig, "invalid sync.pagination")
	}

	overrides := make(map[models.Resource]paginator.Strategy, len(c.Sync.PaginationOverrides))
	for name, s := range c.Sync.PaginationOverrides {
		r, ok := models.ParseResource(name)
		if !ok {
			return paginator.Config{}, synerrors.Newf(synerrors.ErrorTypeConfig, "unknown resource %q in sync.pagination_overrides", name)
		}
		st, err := paginator.ParseStrategy(s)
		if err != nil {
			return paginator.Config{}, synerrors.Wrap(err, synerrors.ErrorTypeConfig, "invalid sync.pagination_overrides").
				WithDetail("resource", name)
		}
		overrides[r] = st
	}

	return paginator.Config{
		PageSize:  c.Sync.PageSize,
		Strategy:  strategy,
		Overrides: overrides,
		MaxPages:  c.Sync.MaxPages,
	}, nil
}

// Interval returns the schedule period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// Lookback returns the first-run watermark distance.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Sync.LookbackDays) * 24 * time.Hour
}

func configError(msg string) error {
	return synerrors.New(synerrors.ErrorTypeConfig, msg)
}
