package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/guillermoBallester/nlquery/internal/core/domain"

	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Executor runs validated statements through database/sql. Every call opens
// its own *sql.DB, so no connection state is shared between requests.
type Executor struct {
	driver         string
	dsn            string
	maxRows        int
	defaultTimeout time.Duration
}

func NewExecutor(driver, dsn string, maxRows int, defaultTimeout time.Duration) *Executor {
	return &Executor{
		driver:         driver,
		dsn:            dsn,
		maxRows:        maxRows,
		defaultTimeout: defaultTimeout,
	}
}

// ReadOnlyDSN turns a database file path into a DSN whose connections refuse writes.
func ReadOnlyDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=query_only(1)"
}

// FilePath returns the file a DSN opens, without a file: prefix or query
// parameters. In-memory databases return "".
func FilePath(dsn string) string {
	path, _, _ := strings.Cut(dsn, "?")
	path = strings.TrimPrefix(path, "file:")
	if path == ":memory:" {
		return ""
	}
	return path
}

// Execute issues query as a single statement and drains the result. Rows past
// the executor's max rows are not read. On timeout or cancellation no rows are
// returned.
func (e *Executor) Execute(ctx context.Context, query string, timeout time.Duration) (*domain.ExecutionResult, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	start := time.Now()

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := sql.Open(e.driver, e.dsn)
	if err != nil {
		return nil, domain.NewExecutionError(fmt.Errorf("opening database: %w", err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	rows, err := db.QueryContext(queryCtx, query)
	if err != nil {
		return nil, domain.ClassifyExecutionError(ctx, queryCtx, err)
	}
	defer func() { _ = rows.Close() }()

	result, err := drain(queryCtx, rows, e.maxRows)
	if err != nil {
		return nil, domain.ClassifyExecutionError(ctx, queryCtx, err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func drain(ctx context.Context, rows *sql.Rows, maxRows int) (*domain.ExecutionResult, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("reading column types: %w", err)
	}
	columns := make([]domain.Column, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = domain.Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
	}

	result := &domain.ExecutionResult{Columns: columns, Rows: make([]domain.Row, 0)}
	values := make([]any, len(columns))
	targets := make([]any, len(columns))

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}

		for i := range values {
			values[i] = nil
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(domain.Row, len(columns))
		for i, col := range columns {
			row[col.Name] = domain.NormalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}
