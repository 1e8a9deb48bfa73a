package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const queryColumns = `
	SELECT m.name, p.name
	FROM sqlite_master m
	JOIN pragma_table_info(m.name) p
	WHERE m.type IN ('table', 'view') AND substr(m.name, 1, 7) <> 'sqlite_'
	ORDER BY m.name, p.cid`

// Inspector lists the tables, views and columns of a database file.
type Inspector struct {
	driver string
	dsn    string
}

func NewInspector(driver, dsn string) *Inspector {
	return &Inspector{driver: driver, dsn: dsn}
}

func (i *Inspector) Columns(ctx context.Context) (map[string][]string, error) {
	db, err := sql.Open(i.driver, i.dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, queryColumns)
	if err != nil {
		return nil, fmt.Errorf("listing columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
