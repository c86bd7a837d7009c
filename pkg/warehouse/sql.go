package warehouse

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

// PoolConfig tunes a database/sql connection pool.
type PoolConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// SQLWarehouse is a Warehouse backed by a database/sql driver.
type SQLWarehouse struct {
	name        string
	db          *sql.DB
	placeholder Placeholder
	logger      *zap.Logger
}

// OpenSQL opens a pool for driver/dsn. The pool connects lazily; Connect
// surfaces connection errors.
func OpenSQL(name, driver, dsn string, ph Placeholder, pool PoolConfig, logger *zap.Logger) (*SQLWarehouse, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, synerrors.Wrap(err, synerrors.ErrorTypeConfig, "failed to open warehouse connection pool").
			WithDetail("warehouse", name)
	}
	return NewSQL(name, db, ph, pool, logger), nil
}

// NewSQL wraps an existing pool.
func NewSQL(name string, db *sql.DB, ph Placeholder, pool PoolConfig, logger *zap.Logger) *SQLWarehouse {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return &SQLWarehouse{
		name:        name,
		db:          db,
		placeholder: ph,
		logger:      logger.With(zap.String("component", "warehouse"), zap.String("warehouse", name)),
	}
}

func (w *SQLWarehouse) Name() string { return w.name }

func (w *SQLWarehouse) Close() error { return w.db.Close() }

// Connect checks out a dedicated connection from the pool.
func (w *SQLWarehouse) Connect(ctx context.Context) (Session, error) {
	conn, err := w.db.Conn(ctx)
	if err != nil {
		return nil, synerrors.Wrap(err, synerrors.ErrorTypeTransport, "failed to connect to warehouse").
			WithDetail("warehouse", w.name)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, synerrors.Wrap(err, synerrors.ErrorTypeTransport, "failed to ping warehouse").
			WithDetail("warehouse", w.name)
	}
	w.logger.Debug("warehouse session opened")
	return &sqlSession{conn: conn, placeholder: w.placeholder, logger: w.logger}, nil
}

type sqlSession struct {
	conn        *sql.Conn
	placeholder Placeholder
	logger      *zap.Logger
}

func (s *sqlSession) InsertBatch(ctx context.Context, table string, rows []models.Row) (err error) {
	cols, err := ValidateBatch(table, rows)
	if err != nil || len(rows) == 0 {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return synerrors.Wrap(err, synerrors.ErrorTypeTransport, "failed to begin transaction").
			WithDetail("table", table)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.logger.Warn("rollback failed", zap.String("table", table), zap.Error(rbErr))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, InsertStatement(table, cols, s.placeholder))
	if err != nil {
		return synerrors.Wrap(err, synerrors.ErrorTypeTransport, "failed to prepare insert").
			WithDetail("table", table)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err = stmt.ExecContext(ctx, Args(row, cols)...); err != nil {
			return synerrors.Wrap(err, synerrors.ErrorTypeTransport, "failed to insert row").
				WithDetail("table", table).
				WithDetail("row", i)
		}
	}

	if err = tx.Commit(); err != nil {
		return synerrors.Wrap(err, synerrors.ErrorTypeTransport, "failed to commit batch").
			WithDetail("table", table)
	}

	s.logger.Debug("batch committed", zap.String("table", table), zap.Int("rows", len(rows)))
	return nil
}

func (s *sqlSession) Close() error {
	s.logger.Debug("warehouse session closed")
	return s.conn.Close()
}
