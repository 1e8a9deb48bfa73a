package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// queryColumns has one %s placeholder for the schema filter clause.
const queryColumns = `
	SELECT c.table_name, c.column_name
	FROM information_schema.columns c
	WHERE %s
	ORDER BY c.table_name, c.ordinal_position`

// Inspector lists the tables and columns visible in the configured schemas.
type Inspector struct {
	pool    *pgxpool.Pool
	schemas []string // empty means all non-system schemas
}

func NewInspector(pool *pgxpool.Pool, schemas []string) *Inspector {
	return &Inspector{pool: pool, schemas: schemas}
}

func (i *Inspector) Columns(ctx context.Context) (map[string][]string, error) {
	filter, args := schemaFilter(i.schemas, "c.table_schema", 1)

	rows, err := i.pool.Query(ctx, fmt.Sprintf(queryColumns, filter), args...)
	if err != nil {
		return nil, fmt.Errorf("listing columns: %w", err)
	}
	defer rows.Close()

	tables := make(map[string][]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		table = strings.ToLower(table)
		tables[table] = append(tables[table], strings.ToLower(column))
	}
	return tables, rows.Err()
}

// schemaFilter returns a WHERE clause fragment and args for filtering by schema.
// paramOffset is the starting $N parameter index (1-based).
// When schemas is empty, it excludes system schemas (pg_catalog, information_schema).
func schemaFilter(schemas []string, column string, paramOffset int) (clause string, args []any) {
	if len(schemas) == 0 {
		return fmt.Sprintf("%s NOT IN ('pg_catalog', 'information_schema')", column), nil
	}
	placeholders := make([]string, len(schemas))
	args = make([]any, len(schemas))
	for i, s := range schemas {
		placeholders[i] = fmt.Sprintf("$%d", paramOffset+i)
		args[i] = s
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), args
}
