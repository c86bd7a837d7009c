package warehouse

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"  // registers the "pgx" driver
	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver
	"github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the pure-Go "sqlite" driver

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
)

// SnowflakeConfig holds Snowflake connection settings.
type SnowflakeConfig struct {
	Account   string `mapstructure:"account" yaml:"account"`
	User      string `mapstructure:"user" yaml:"user"`
	Password  string `mapstructure:"password" yaml:"password"`
	Database  string `mapstructure:"database" yaml:"database"`
	Schema    string `mapstructure:"schema" yaml:"schema"`
	Warehouse string `mapstructure:"warehouse" yaml:"warehouse"`
	Role      string `mapstructure:"role" yaml:"role"`
}

// SnowflakeDSN renders cfg as a gosnowflake DSN.
func SnowflakeDSN(cfg SnowflakeConfig) (string, error) {
	if cfg.Account == "" || cfg.User == "" {
		return "", synerrors.New(synerrors.ErrorTypeConfig, "snowflake account and user are required")
	}
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
		Params:    map[string]*string{"client_session_keep_alive": strPtr("true")},
	})
	if err != nil {
		return "", synerrors.Wrap(err, synerrors.ErrorTypeConfig, "invalid snowflake configuration")
	}
	return dsn, nil
}

// NewSnowflake opens a Snowflake warehouse.
func NewSnowflake(cfg SnowflakeConfig, pool PoolConfig, logger *zap.Logger) (*SQLWarehouse, error) {
	dsn, err := SnowflakeDSN(cfg)
	if err != nil {
		return nil, err
	}
	return OpenSQL("snowflake", "snowflake", dsn, QuestionMark, pool, logger)
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// PostgresDSN renders cfg as a postgres:// URL.
func PostgresDSN(cfg PostgresConfig) (string, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return "", synerrors.New(synerrors.ErrorTypeConfig, "postgres host and database are required")
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:   "/" + cfg.Database,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String(), nil
}

// NewPostgres opens a PostgreSQL warehouse through the pgx stdlib driver.
func NewPostgres(cfg PostgresConfig, pool PoolConfig, logger *zap.Logger) (*SQLWarehouse, error) {
	dsn, err := PostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return OpenSQL("postgres", "pgx", dsn, Dollar, pool, logger)
}

// MySQLConfig holds MySQL connection settings.
type MySQLConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// MySQLDSN renders cfg as a go-sql-driver DSN.
func MySQLDSN(cfg MySQLConfig) (string, error) {
	if cfg.Addr == "" || cfg.Database == "" {
		return "", synerrors.New(synerrors.ErrorTypeConfig, "mysql addr and database are required")
	}
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = cfg.Addr
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN(), nil
}

// NewMySQL opens a MySQL warehouse.
func NewMySQL(cfg MySQLConfig, pool PoolConfig, logger *zap.Logger) (*SQLWarehouse, error) {
	dsn, err := MySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return OpenSQL("mysql", "mysql", dsn, QuestionMark, pool, logger)
}

// SQLServerConfig holds SQL Server connection settings.
type SQLServerConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	Encrypt  string `mapstructure:"encrypt" yaml:"encrypt"`
}

// SQLServerDSN renders cfg as a sqlserver:// URL.
func SQLServerDSN(cfg SQLServerConfig) (string, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return "", synerrors.New(synerrors.ErrorTypeConfig, "sqlserver host and database are required")
	}
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	q := url.Values{"database": {cfg.Database}}
	if cfg.Encrypt != "" {
		q.Set("encrypt", cfg.Encrypt)
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// NewSQLServer opens a SQL Server warehouse.
func NewSQLServer(cfg SQLServerConfig, pool PoolConfig, logger *zap.Logger) (*SQLWarehouse, error) {
	dsn, err := SQLServerDSN(cfg)
	if err != nil {
		return nil, err
	}
	return OpenSQL("sqlserver", "sqlserver", dsn, AtP, pool, logger)
}

// SQLiteConfig holds the path of a local SQLite database, used for
// development runs without a hosted warehouse.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// NewSQLite opens a SQLite file as the warehouse. Tables must exist.
func NewSQLite(cfg SQLiteConfig, pool PoolConfig, logger *zap.Logger) (*SQLWarehouse, error) {
	if cfg.Path == "" {
		return nil, synerrors.New(synerrors.ErrorTypeConfig, "sqlite path is required")
	}
	// SQLite serializes writers; more than one open connection only adds
	// SQLITE_BUSY errors.
	pool.MaxOpenConns = 1
	return OpenSQL("sqlite", "sqlite", cfg.Path, QuestionMark, pool, logger)
}

func strPtr(s string) *string { return &s }
