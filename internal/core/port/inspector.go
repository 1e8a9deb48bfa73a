package port

import "context"

// SchemaInspector reports the tables and columns that actually exist in the
// store, keyed by lower-cased table name.
type SchemaInspector interface {
	Columns(ctx context.Context) (map[string][]string, error)
}
