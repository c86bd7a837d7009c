package warehouse

import (
	"context"

	"go.uber.org/zap"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
)

// Warehouse types.
const (
	TypeSnowflake = "snowflake"
	TypePostgres  = "postgres"
	TypeMySQL     = "mysql"
	TypeBigQuery  = "bigquery"
	TypeSQLServer = "sqlserver"
	TypeSQLite    = "sqlite"
)

// Config selects a warehouse and carries the settings of every kind.
type Config struct {
	Type      string          `mapstructure:"type" yaml:"type"`
	Pool      PoolConfig      `mapstructure:"pool" yaml:"pool"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake" yaml:"snowflake"`
	Postgres  PostgresConfig  `mapstructure:"postgres" yaml:"postgres"`
	MySQL     MySQLConfig     `mapstructure:"mysql" yaml:"mysql"`
	BigQuery  BigQueryConfig  `mapstructure:"bigquery" yaml:"bigquery"`
	SQLServer SQLServerConfig `mapstructure:"sqlserver" yaml:"sqlserver"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite" yaml:"sqlite"`
}

// New builds the configured warehouse. An empty type means Snowflake.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Warehouse, error) {
	var (
		w   Warehouse
		err error
	)
	switch cfg.Type {
	case "", TypeSnowflake:
		w, err = unwrap(NewSnowflake(cfg.Snowflake, cfg.Pool, logger))
	case TypePostgres:
		w, err = unwrap(NewPostgres(cfg.Postgres, cfg.Pool, logger))
	case TypeMySQL:
		w, err = unwrap(NewMySQL(cfg.MySQL, cfg.Pool, logger))
	case TypeSQLServer:
		w, err = unwrap(NewSQLServer(cfg.SQLServer, cfg.Pool, logger))
	case TypeSQLite:
		w, err = unwrap(NewSQLite(cfg.SQLite, cfg.Pool, logger))
	case TypeBigQuery:
		bq, bqErr := NewBigQuery(ctx, cfg.BigQuery, logger)
		if bqErr != nil {
			return nil, bqErr
		}
		w = bq
	default:
		return nil, synerrors.Newf(synerrors.ErrorTypeConfig, "unknown warehouse type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// unwrap keeps a nil *SQLWarehouse from becoming a non-nil Warehouse.
func unwrap(w *SQLWarehouse, err error) (Warehouse, error) {
	if err != nil {
		return nil, err
	}
	return w, nil
}
