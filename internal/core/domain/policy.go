package domain

import (
	"slices"
	"strings"
	"time"
)

const (
	DefaultMaxRows          = 1000
	DefaultStatementTimeout = 15 * time.Second
)

// AllowListPolicy is the immutable allow-list the gate checks generated SQL against.
// Table and column names are matched case-insensitively.
type AllowListPolicy struct {
	tables           map[string]struct{}
	columns          map[string]struct{}
	maxRows          int
	statementTimeout time.Duration
}

// NewAllowListPolicy builds a policy from the given identifiers. Names are
// lower-cased and blanks dropped. Non-positive limits fall back to defaults.
func NewAllowListPolicy(tables, columns []string, maxRows int, statementTimeout time.Duration) *AllowListPolicy {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if statementTimeout <= 0 {
		statementTimeout = DefaultStatementTimeout
	}
	return &AllowListPolicy{
		tables:           toSet(tables),
		columns:          toSet(columns),
		maxRows:          maxRows,
		statementTimeout: statementTimeout,
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func (p *AllowListPolicy) IsTable(name string) bool {
	_, ok := p.tables[strings.ToLower(name)]
	return ok
}

func (p *AllowListPolicy) IsColumn(name string) bool {
	_, ok := p.columns[strings.ToLower(name)]
	return ok
}

func (p *AllowListPolicy) MaxRows() int { return p.maxRows }

func (p *AllowListPolicy) StatementTimeout() time.Duration { return p.statementTimeout }

// Tables returns the allowed table names, sorted.
func (p *AllowListPolicy) Tables() []string { return sortedKeys(p.tables) }

// Columns returns the allowed column names, sorted.
func (p *AllowListPolicy) Columns() []string { return sortedKeys(p.columns) }

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
