package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guillermoBallester/nlquery/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sqlStateQueryCanceled is raised when statement_timeout fires server-side.
const sqlStateQueryCanceled = "57014"

// Executor runs validated statements on a bounded pgx pool.
type Executor struct {
	pool           *pgxpool.Pool
	readOnly       bool
	maxRows        int
	defaultTimeout time.Duration
}

func NewExecutor(pool *pgxpool.Pool, readOnly bool, maxRows int, defaultTimeout time.Duration) *Executor {
	return &Executor{
		pool:           pool,
		readOnly:       readOnly,
		maxRows:        maxRows,
		defaultTimeout: defaultTimeout,
	}
}

func (e *Executor) Execute(ctx context.Context, sql string, timeout time.Duration) (*domain.ExecutionResult, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	start := time.Now()

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := e.pool.BeginTx(queryCtx, pgx.TxOptions{
		AccessMode: e.accessMode(),
	})
	if err != nil {
		return nil, e.classify(ctx, queryCtx, fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	// Enforce statement timeout at the database level so PostgreSQL cancels
	// the query server-side even if the Go context is cancelled first.
	// SET LOCAL scopes to this transaction only.
	if _, err := tx.Exec(queryCtx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeout.Milliseconds())); err != nil {
		return nil, e.classify(ctx, queryCtx, fmt.Errorf("setting statement timeout: %w", err))
	}

	rows, err := tx.Query(queryCtx, sql)
	if err != nil {
		return nil, e.classify(ctx, queryCtx, err)
	}
	defer rows.Close()

	result, err := drainRows(queryCtx, rows, e.maxRows)
	if err != nil {
		return nil, e.classify(ctx, queryCtx, err)
	}

	// Read-only work; nothing to commit.
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Executor) classify(parent, bounded context.Context, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateQueryCanceled && parent.Err() == nil {
		return fmt.Errorf("%w: %s", domain.ErrTimeout, pgErr.Message)
	}
	return domain.ClassifyExecutionError(parent, bounded, err)
}

func (e *Executor) accessMode() pgx.TxAccessMode {
	if e.readOnly {
		return pgx.ReadOnly
	}
	return pgx.ReadWrite
}
