// Package warehouse writes mapped rows into the analytics warehouse.
//
// A Warehouse owns the long-lived client or connection pool. A Session is
// one scoped connection handed out for the duration of a sync run; the
// caller must Close it exactly once. Each InsertBatch call is atomic: either
// every row of the batch is committed or none is.
package warehouse

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

// Warehouse hands out sessions.
type Warehouse interface {
	// Connect obtains a scoped session.
	Connect(ctx context.Context) (Session, error)
	// Name identifies the warehouse kind in logs and metrics.
	Name() string
	// Close releases the underlying pool or client.
	Close() error
}

// Session is one scoped connection.
type Session interface {
	// InsertBatch inserts rows into table in a single transaction. An
	// empty batch is a no-op.
	InsertBatch(ctx context.Context, table string, rows []models.Row) error
	// Close releases the session.
	Close() error
}

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// QuestionMark is the placeholder style of Snowflake and MySQL.
func QuestionMark(int) string { return "?" }

// Dollar is the placeholder style of PostgreSQL.
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// AtP is the placeholder style of SQL Server.
func AtP(n int) string { return "@p" + strconv.Itoa(n) }

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateBatch checks table and column identifiers and returns the column
// list shared by every row, in sorted order.
func ValidateBatch(table string, rows []models.Row) ([]string, error) {
	if !identRe.MatchString(table) {
		return nil, synerrors.Newf(synerrors.ErrorTypeValidation, "invalid table name %q", table)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := rows[0].Columns()
	if len(cols) == 0 {
		return nil, synerrors.New(synerrors.ErrorTypeValidation, "row has no columns").
			WithDetail("table", table)
	}
	for _, c := range cols {
		if !identRe.MatchString(c) {
			return nil, synerrors.Newf(synerrors.ErrorTypeValidation, "invalid column name %q", c).
				WithDetail("table", table)
		}
	}
	for i, row := range rows[1:] {
		if !row.SameColumns(cols) {
			return nil, synerrors.New(synerrors.ErrorTypeValidation, "rows in batch have different columns").
				WithDetail("table", table).
				WithDetail("row", i+1)
		}
	}
	return cols, nil
}

// InsertStatement builds a parameterized single-row INSERT.
func InsertStatement(table string, cols []string, ph Placeholder) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES (")
	for i := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ph(i + 1))
	}
	b.WriteString(")")
	return b.String()
}

// Args returns the values of row in column order.
func Args(row models.Row, cols []string) []any {
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = row[c]
	}
	return args
}
