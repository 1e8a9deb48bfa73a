package domain

import "time"

// Column describes one result column as reported by the store.
type Column struct {
	Name         string `json:"name"`
	DatabaseType string `json:"database_type,omitempty"`
}

// Row maps column name to value. SQL NULL is an explicit nil entry.
type Row map[string]any

// ExecutionResult holds a fully drained result set.
type ExecutionResult struct {
	Columns   []Column      `json:"columns"`
	Rows      []Row         `json:"rows"`
	RowCount  int           `json:"row_count"`
	Duration  time.Duration `json:"-"`
	Truncated bool          `json:"truncated,omitempty"`
}

// DurationMS is the execution time in whole milliseconds.
func (r *ExecutionResult) DurationMS() int64 {
	return r.Duration.Milliseconds()
}

// NormalizeValue converts driver values into JSON-friendly scalars. nil stays
// nil so NULL columns remain present in the row.
func NormalizeValue(v any) any {
	switch typed := v.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}
