package postgres

import (
	"context"
	"fmt"

	"github.com/guillermoBallester/nlquery/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// drainRows converts pgx.Rows into an ExecutionResult, stopping after maxRows.
func drainRows(ctx context.Context, rows pgx.Rows, maxRows int) (*domain.ExecutionResult, error) {
	fields := rows.FieldDescriptions()
	columns := make([]domain.Column, len(fields))
	for i, fd := range fields {
		columns[i] = domain.Column{Name: fd.Name, DatabaseType: typeName(rows, fd.DataTypeOID)}
	}

	result := &domain.ExecutionResult{Columns: columns, Rows: make([]domain.Row, 0)}
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}

		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(domain.Row, len(columns))
		for i, col := range columns {
			row[col.Name] = domain.NormalizeValue(vals[i])
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

func typeName(rows pgx.Rows, oid uint32) string {
	conn := rows.Conn()
	if conn == nil {
		return ""
	}
	if t, ok := conn.TypeMap().TypeForOID(oid); ok {
		return t.Name
	}
	return ""
}
