package service

import (
	"context"
	"fmt"

	"github.com/guillermoBallester/nlquery/internal/core/domain"
	"github.com/guillermoBallester/nlquery/internal/core/port"
)

// Catalog describes what callers may query.
type Catalog struct {
	Tables                  []string `json:"tables"`
	Columns                 []string `json:"columns"`
	MaxRows                 int      `json:"max_rows"`
	StatementTimeoutSeconds float64  `json:"statement_timeout_seconds"`
	Schema                  string   `json:"schema,omitempty"`
}

// CatalogService exposes the allow-list and the schema context given to the
// SQL generator, so callers can write queries the gate will accept.
type CatalogService struct {
	policy *domain.AllowListPolicy
	schema string
}

func NewCatalogService(policy *domain.AllowListPolicy, schema string) *CatalogService {
	return &CatalogService{policy: policy, schema: schema}
}

func (s *CatalogService) Describe() Catalog {
	return Catalog{
		Tables:                  s.policy.Tables(),
		Columns:                 s.policy.Columns(),
		MaxRows:                 s.policy.MaxRows(),
		StatementTimeoutSeconds: s.policy.StatementTimeout().Seconds(),
		Schema:                  s.schema,
	}
}

// Drift lists allow-list entries the store does not have. Queries naming them
// pass the gate but fail at execution.
type Drift struct {
	MissingTables  []string `json:"missing_tables,omitempty"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

func (d Drift) Empty() bool {
	return len(d.MissingTables) == 0 && len(d.MissingColumns) == 0
}

// Verify compares the allow-list against the store's actual schema. A column
// counts as present when any table in the store has it.
func (s *CatalogService) Verify(ctx context.Context, inspector port.SchemaInspector) (Drift, error) {
	tables, err := inspector.Columns(ctx)
	if err != nil {
		return Drift{}, fmt.Errorf("inspecting schema: %w", err)
	}

	present := make(map[string]struct{})
	for _, cols := range tables {
		for _, c := range cols {
			present[c] = struct{}{}
		}
	}

	var drift Drift
	for _, t := range s.policy.Tables() {
		if _, ok := tables[t]; !ok {
			drift.MissingTables = append(drift.MissingTables, t)
		}
	}
	for _, c := range s.policy.Columns() {
		if _, ok := present[c]; !ok {
			drift.MissingColumns = append(drift.MissingColumns, c)
		}
	}
	return drift, nil
}
