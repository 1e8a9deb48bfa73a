package policy

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/guillermoBallester/nlquery/internal/core/domain"
)

// Merge adds tables and columns supplied outside the policy file, such as the
// ALLOWED_TABLES and ALLOWED_COLUMNS environment variables.
func (p *Policy) Merge(tables, columns []string) {
	if p.Tables == nil {
		p.Tables = make(map[string]TableSpec, len(tables))
	}
	for _, t := range tables {
		if _, ok := p.Tables[t]; !ok {
			p.Tables[t] = TableSpec{}
		}
	}
	p.Columns = append(p.Columns, columns...)
}

// TableNames returns the allowed table names, sorted.
func (p *Policy) TableNames() []string {
	names := make([]string, 0, len(p.Tables))
	for name := range p.Tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ColumnNames returns every allowed column, whether declared under a table or
// in the top-level list, sorted and deduplicated.
func (p *Policy) ColumnNames() []string {
	var names []string
	for _, spec := range p.Tables {
		for col := range spec.Columns {
			names = append(names, col)
		}
	}
	names = append(names, p.Columns...)
	slices.Sort(names)
	return slices.Compact(names)
}

// AllowList builds the immutable gate policy. Limits set in the file take
// precedence over the supplied defaults.
func (p *Policy) AllowList(maxRows int, statementTimeout time.Duration) *domain.AllowListPolicy {
	if p.MaxRows > 0 {
		maxRows = p.MaxRows
	}
	if p.StatementTimeoutSeconds > 0 {
		statementTimeout = time.Duration(p.StatementTimeoutSeconds) * time.Second
	}
	return domain.NewAllowListPolicy(p.TableNames(), p.ColumnNames(), maxRows, statementTimeout)
}

// PromptSchema returns the schema context handed to the SQL generator: the
// explicit schema_hint when set, otherwise one line per table listing its
// columns and description.
func (p *Policy) PromptSchema() string {
	if hint := strings.TrimSpace(p.SchemaHint); hint != "" {
		return hint
	}

	var b strings.Builder
	for _, name := range p.TableNames() {
		spec := p.Tables[name]
		cols := make([]string, 0, len(spec.Columns))
		for col := range spec.Columns {
			cols = append(cols, col)
		}
		slices.Sort(cols)

		fmt.Fprintf(&b, "%s(%s)", name, strings.Join(cols, ", "))
		if spec.Description != "" {
			fmt.Fprintf(&b, " -- %s", spec.Description)
		}
		b.WriteString("\n")

		for _, col := range cols {
			if desc := spec.Columns[col]; desc != "" {
				fmt.Fprintf(&b, "  %s.%s: %s\n", name, col, desc)
			}
		}
	}
	if len(p.Columns) > 0 {
		fmt.Fprintf(&b, "Other columns: %s\n", strings.Join(p.Columns, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
