package warehouse

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

// recordingDriver is a minimal database/sql driver that records what a
// session executes.
type recordingDriver struct {
	mu        sync.Mutex
	prepared  []string
	execs     [][]driver.Value
	commits   int
	rollbacks int
	failOnRow int // 1-based; 0 disables
}

func (d *recordingDriver) Open(string) (driver.Conn, error) { return &recordingConn{d: d}, nil }

type recordingConn struct{ d *recordingDriver }

func (c *recordingConn) Prepare(query string) (driver.Stmt, error) {
	c.d.mu.Lock()
	c.d.prepared = append(c.d.prepared, query)
	c.d.mu.Unlock()
	return &recordingStmt{d: c.d}, nil
}
func (c *recordingConn) Close() error              { return nil }
func (c *recordingConn) Begin() (driver.Tx, error) { return &recordingTx{d: c.d}, nil }

type recordingStmt struct {
	d *recordingDriver
	n int
}

func (s *recordingStmt) Close() error  { return nil }
func (s *recordingStmt) NumInput() int { return -1 }
func (s *recordingStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.n++
	if s.d.failOnRow == s.n {
		return nil, errors.New("constraint violation")
	}
	s.d.mu.Lock()
	s.d.execs = append(s.d.execs, args)
	s.d.mu.Unlock()
	return driver.RowsAffected(1), nil
}
func (s *recordingStmt) Query([]driver.Value) (driver.Rows, error) { return nil, io.EOF }

type recordingTx struct{ d *recordingDriver }

func (t *recordingTx) Commit() error {
	t.d.mu.Lock()
	t.d.commits++
	t.d.mu.Unlock()
	return nil
}

func (t *recordingTx) Rollback() error {
	t.d.mu.Lock()
	t.d.rollbacks++
	t.d.mu.Unlock()
	return nil
}

var driverSeq struct {
	sync.Mutex
	n int
}

func newRecordingWarehouse(t *testing.T, ph Placeholder) (*SQLWarehouse, *recordingDriver) {
	t.Helper()
	d := &recordingDriver{}

	driverSeq.Lock()
	driverSeq.n++
	name := "recording" + string(rune('a'+driverSeq.n))
	driverSeq.Unlock()
	sql.Register(name, d)

	w, err := OpenSQL("test", name, "", ph, PoolConfig{MaxOpenConns: 2}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, d
}

func TestInsertStatement(t *testing.T) {
	cols := []string{"a", "b", "c"}
	assert.Equal(t, "INSERT INTO T (a, b, c) VALUES (?, ?, ?)", InsertStatement("T", cols, QuestionMark))
	assert.Equal(t, "INSERT INTO T (a, b, c) VALUES ($1, $2, $3)", InsertStatement("T", cols, Dollar))
	assert.Equal(t, "INSERT INTO T (a, b, c) VALUES (@p1, @p2, @p3)", InsertStatement("T", cols, AtP))
}

func TestValidateBatch(t *testing.T) {
	cols, err := ValidateBatch("ORDERS", []models.Row{{"b": 1, "a": 2}, {"a": 3, "b": nil}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cols)

	cols, err = ValidateBatch("ORDERS", nil)
	require.NoError(t, err)
	assert.Nil(t, cols)

	tests := []struct {
		name  string
		table string
		rows  []models.Row
	}{
		{"bad table", "ORDERS; DROP TABLE x", []models.Row{{"a": 1}}},
		{"bad column", "ORDERS", []models.Row{{"a b": 1}}},
		{"no columns", "ORDERS", []models.Row{{}}},
		{"mismatched rows", "ORDERS", []models.Row{{"a": 1}, {"b": 1}}},
		{"extra column", "ORDERS", []models.Row{{"a": 1}, {"a": 1, "b": 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateBatch(tt.table, tt.rows)
			assert.True(t, synerrors.IsType(err, synerrors.ErrorTypeValidation))
		})
	}
}

func TestSQLSession_InsertBatchCommits(t *testing.T) {
	w, d := newRecordingWarehouse(t, QuestionMark)
	ctx := context.Background()

	sess, err := w.Connect(ctx)
	require.NoError(t, err)
	defer sess.Close()

	rows := []models.Row{
		{"order_id": int64(1), "total": decimal.RequireFromString("10.50"), "note": nil},
		{"order_id": int64(2), "total": decimal.RequireFromString("0.3"), "note": "gift"},
	}
	require.NoError(t, sess.InsertBatch(ctx, "ORDERS", rows))

	require.Len(t, d.prepared, 1)
	assert.Equal(t, "INSERT INTO ORDERS (note, order_id, total) VALUES (?, ?, ?)", d.prepared[0])
	require.Len(t, d.execs, 2)
	assert.Equal(t, []driver.Value{nil, int64(1), "10.5"}, d.execs[0])
	assert.Equal(t, []driver.Value{"gift", int64(2), "0.3"}, d.execs[1])
	assert.Equal(t, 1, d.commits)
	assert.Equal(t, 0, d.rollbacks)
}

func TestSQLSession_FailureRollsBack(t *testing.T) {
	w, d := newRecordingWarehouse(t, Dollar)
	d.failOnRow = 2
	ctx := context.Background()

	sess, err := w.Connect(ctx)
	require.NoError(t, err)
	defer sess.Close()

	err = sess.InsertBatch(ctx, "CUSTOMERS", []models.Row{{"id": int64(1)}, {"id": int64(2)}})
	require.Error(t, err)
	assert.True(t, synerrors.IsType(err, synerrors.ErrorTypeTransport))
	assert.Equal(t, 0, d.commits)
	assert.Equal(t, 1, d.rollbacks)
}

func TestSQLSession_EmptyBatchIsNoop(t *testing.T) {
	w, d := newRecordingWarehouse(t, QuestionMark)
	ctx := context.Background()

	sess, err := w.Connect(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.InsertBatch(ctx, "ORDER_ITEMS", nil))
	assert.Empty(t, d.prepared)
	assert.Equal(t, 0, d.commits)
}

func TestDSNs(t *testing.T) {
	pg, err := PostgresDSN(PostgresConfig{Host: "db", User: "sync", Password: "p@ss", Database: "dw", SSLMode: "disable"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://sync:p%40ss@db:5432/dw?sslmode=disable", pg)

	my, err := MySQLDSN(MySQLConfig{Addr: "db:3306", User: "sync", Password: "pw", Database: "dw"})
	require.NoError(t, err)
	assert.Contains(t, my, "sync:pw@tcp(db:3306)/dw")
	assert.Contains(t, my, "parseTime=true")

	ms, err := SQLServerDSN(SQLServerConfig{Host: "db", User: "sa", Password: "pw", Database: "dw", Encrypt: "disable"})
	require.NoError(t, err)
	assert.Equal(t, "sqlserver://sa:pw@db:1433?database=dw&encrypt=disable", ms)

	_, err = NewSQLite(SQLiteConfig{}, PoolConfig{}, nil)
	assert.True(t, synerrors.IsType(err, synerrors.ErrorTypeConfig))

	_, err = SnowflakeDSN(SnowflakeConfig{})
	assert.True(t, synerrors.IsType(err, synerrors.ErrorTypeConfig))

	_, err = New(context.Background(), Config{Type: "redshift"}, nil)
	assert.True(t, synerrors.IsType(err, synerrors.ErrorTypeConfig))

	w, err := New(context.Background(), Config{Type: TypePostgres}, nil)
	assert.Nil(t, w)
	assert.True(t, synerrors.IsType(err, synerrors.ErrorTypeConfig))
}

func TestBigQueryValue(t *testing.T) {
	assert.Equal(t, "12.34", BigQueryValue(decimal.RequireFromString("12.34")))
	assert.Equal(t, int64(3), BigQueryValue(int64(3)))
	assert.Nil(t, BigQueryValue(nil))

	saved, id, err := rowSaver{row: models.Row{"price": decimal.New(5, -1), "sku": "A"}, cols: []string{"price", "sku"}}.Save()
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, "0.5", saved["price"])
	assert.Equal(t, "A", saved["sku"])
}
