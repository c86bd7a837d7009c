package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/paginator"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Shopify.ShopName = "demo"
	cfg.Shopify.AccessToken = "shpat_x"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "2024-01", cfg.Shopify.APIVersion)
	assert.Equal(t, 5*time.Minute, cfg.Interval())
	assert.Equal(t, 90*24*time.Hour, cfg.Lookback())
	assert.Equal(t, 250, cfg.Sync.PageSize)
	assert.Equal(t, 3, cfg.Sync.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Sync.RetryDelay)

	resources, err := cfg.SyncResources()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultResources, resources)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing shop", func(c *Config) { c.Shopify.ShopName = "" }},
		{"missing token", func(c *Config) { c.Shopify.AccessToken = "" }},
		{"unknown resource", func(c *Config) { c.Sync.Resources = []string{"refunds"} }},
		{"no resources", func(c *Config) { c.Sync.Resources = nil }},
		{"zero interval", func(c *Config) { c.Sync.IntervalMinutes = 0 }},
		{"page too large", func(c *Config) { c.Sync.PageSize = 251 }},
		{"bad strategy", func(c *Config) { c.Sync.Pagination = "cursor" }},
		{"bad override", func(c *Config) { c.Sync.PaginationOverrides = map[string]string{"orders": "cursor"} }},
		{"zero attempts", func(c *Config) { c.Sync.RetryAttempts = 0 }},
		{"notify without brokers", func(c *Config) { c.Notify.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, synerrors.IsType(err, synerrors.ErrorTypeConfig))
		})
	}
}

func TestPaginatorConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.PaginationOverrides = map[string]string{"orders": "link"}

	pc, err := cfg.PaginatorConfig()
	require.NoError(t, err)
	assert.Equal(t, paginator.StrategyTrailingID, pc.Strategy)
	assert.Equal(t, paginator.StrategyLink, pc.Overrides[models.ResourceOrders])
	assert.Equal(t, 250, pc.PageSize)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shopsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
shopify:
  shop_name: from-file
  access_token: ${TEST_SHOPSYNC_TOKEN}
sync:
  page_size: 100
  retry_delay: 500ms
  resources: [orders, customers]
warehouse:
  type: postgres
  postgres:
    host: db
    database: dw
`), 0o600))

	t.Setenv("TEST_SHOPSYNC_TOKEN", "shpat_file")
	t.Setenv("SYNC_INTERVAL_MINUTES", "15")
	t.Setenv("SHOPSYNC_SYNC_LOOKBACK_DAYS", "7")
	t.Setenv("SNOWFLAKE_USERNAME", "loader")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Shopify.ShopName)
	assert.Equal(t, "shpat_file", cfg.Shopify.AccessToken)
	assert.Equal(t, "2024-01", cfg.Shopify.APIVersion)
	assert.Equal(t, 100, cfg.Sync.PageSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.RetryDelay)
	assert.Equal(t, []string{"orders", "customers"}, cfg.Sync.Resources)
	assert.Equal(t, 15, cfg.Sync.IntervalMinutes)
	assert.Equal(t, 7, cfg.Sync.LookbackDays)
	assert.Equal(t, "postgres", cfg.Warehouse.Type)
	assert.Equal(t, "db", cfg.Warehouse.Postgres.Host)
	assert.Equal(t, "loader", cfg.Warehouse.Snowflake.User)
	require.NoError(t, cfg.Validate())
}

func TestLoad_PrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("SHOPIFY_SHOP_NAME", "legacy")
	t.Setenv("SHOPSYNC_SHOPIFY_SHOP_NAME", "prefixed")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Shopify.ShopName)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, synerrors.IsType(err, synerrors.ErrorTypeConfig))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := validConfig()
	cfg.Sync.IntervalMinutes = 10
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.Sync.IntervalMinutes)
	assert.Equal(t, "demo", loaded.Shopify.ShopName)
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Warehouse.Snowflake.Password = "secret"

	r := cfg.Redacted()
	assert.Equal(t, "********", r.Shopify.AccessToken)
	assert.Equal(t, "********", r.Warehouse.Snowflake.Password)
	assert.Equal(t, "", r.Warehouse.MySQL.Password)
	assert.Equal(t, "shpat_x", cfg.Shopify.AccessToken)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TEST_SHOPSYNC_DOTENV=hello\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TEST_SHOPSYNC_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "hello", os.Getenv("TEST_SHOPSYNC_DOTENV"))
}
