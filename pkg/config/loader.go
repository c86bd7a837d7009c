package config

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g.
// SHOPSYNC_SYNC_PAGE_SIZE for sync.page_size.
const EnvPrefix = "SHOPSYNC"

// legacyEnv maps config keys to the plain environment names deployments
// already use. The prefixed name wins when both are set.
var legacyEnv = map[string]string{
	"shopify.shop_name":             "SHOPIFY_SHOP_NAME",
	"shopify.access_token":          "SHOPIFY_ACCESS_TOKEN",
	"shopify.api_version":           "SHOPIFY_API_VERSION",
	"warehouse.snowflake.account":   "SNOWFLAKE_ACCOUNT",
	"warehouse.snowflake.user":      "SNOWFLAKE_USERNAME",
	"warehouse.snowflake.password":  "SNOWFLAKE_PASSWORD",
	"warehouse.snowflake.database":  "SNOWFLAKE_DATABASE",
	"warehouse.snowflake.schema":    "SNOWFLAKE_SCHEMA",
	"warehouse.snowflake.warehouse": "SNOWFLAKE_WAREHOUSE",
	"warehouse.snowflake.role":      "SNOWFLAKE_ROLE",
	"sync.interval_minutes":         "SYNC_INTERVAL_MINUTES",
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return synerrors.Wrap(err, synerrors.ErrorTypeConfig, "failed to load env file").
				WithDetail("path", p)
		}
	}
	return nil
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment, in increasing precedence. ${VAR} references in
// the file are expanded before parsing.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, synerrors.Wrap(err, synerrors.ErrorTypeInternal, "failed to encode default config")
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, synerrors.Wrap(err, synerrors.ErrorTypeInternal, "failed to read default config")
	}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return nil, synerrors.Wrap(err, synerrors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}
		content := substituteEnvVars(string(data))
		if err := v.MergeConfig(strings.NewReader(content)); err != nil {
			return nil, synerrors.Wrap(err, synerrors.ErrorTypeConfig, "failed to parse config file").
				WithDetail("path", path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, synerrors.Wrap(err, synerrors.ErrorTypeInternal, "failed to bind environment").
				WithDetail("key", key)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, synerrors.Wrap(err, synerrors.ErrorTypeConfig, "failed to decode config")
	}
	return cfg, nil
}

// Save writes cfg as YAML. The file may contain credentials, so it is only
// readable by its owner.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return synerrors.Wrap(err, synerrors.ErrorTypeInternal, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return synerrors.Wrap(err, synerrors.ErrorTypeConfig, "failed to write config file").
			WithDetail("path", path)
	}
	return nil
}

// Redacted returns a copy of cfg with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Shopify.AccessToken = mask(out.Shopify.AccessToken)
	out.Warehouse.Snowflake.Password = mask(out.Warehouse.Snowflake.Password)
	out.Warehouse.Postgres.Password = mask(out.Warehouse.Postgres.Password)
	out.Warehouse.MySQL.Password = mask(out.Warehouse.MySQL.Password)
	out.Warehouse.SQLServer.Password = mask(out.Warehouse.SQLServer.Password)
	out.Checkpoint.URI = mask(out.Checkpoint.URI)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		content = content[:start] + os.Getenv(varName) + content[end+1:]
	}
	return content
}
