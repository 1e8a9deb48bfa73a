package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Origin tags where a candidate query came from.
type Origin string

const (
	OriginGenerated Origin = "generated"
	OriginCaller    Origin = "caller"
)

// CandidateQuery is untrusted SQL text awaiting a verdict.
type CandidateQuery struct {
	SQL    string
	Origin Origin
}

// Verdict is the gate's decision. SQL holds the row-limited text to execute
// and is empty when the query was rejected.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Stage   Stage  `json:"stage,omitempty"`
	Reason  string `json:"reason,omitempty"`
	SQL     string `json:"sql,omitempty"`
}

// Err returns the verdict as an error, or nil when the query passed.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	return &RejectionError{Stage: v.Stage, Reason: v.Reason}
}

const maxToleratedNameLen = 10

var (
	selectPrefix = regexp.MustCompile(`(?i)^select\s`)
	identifier   = regexp.MustCompile(`[a-z_][a-z0-9_]*`)
	limitClause  = regexp.MustCompile(`(?i)limit`)
)

// forbiddenTokens is scanned in order; the separator goes first so stacked
// statements are always reported as such.
var forbiddenTokens = []string{";", "insert", "update", "delete", "drop", "alter", "create", "attach", "pragma"}

var sqlKeywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "join": {}, "inner": {}, "left": {}, "right": {},
	"outer": {}, "cross": {}, "on": {}, "group": {}, "by": {}, "order": {}, "having": {},
	"limit": {}, "offset": {}, "as": {}, "and": {}, "or": {}, "not": {}, "in": {}, "is": {},
	"null": {}, "like": {}, "between": {}, "distinct": {}, "case": {}, "when": {}, "then": {},
	"else": {}, "end": {}, "asc": {}, "desc": {}, "count": {}, "avg": {}, "sum": {}, "min": {},
	"max": {}, "group_concat": {}, "current_date": {}, "current_timestamp": {},
}

// Gate decides whether untrusted SQL may reach the executor. It is a lexical
// allow-list check, not a parser, and holds no mutable state.
type Gate struct {
	policy *AllowListPolicy
}

func NewGate(policy *AllowListPolicy) *Gate {
	return &Gate{policy: policy}
}

func (g *Gate) Policy() *AllowListPolicy { return g.policy }

// Validate runs the statement-kind, forbidden-token and allow-list checks in
// order and, on success, returns the row-limited rewrite.
func (g *Gate) Validate(sql string) Verdict {
	for _, check := range []func(string) *RejectionError{
		checkStatementKind,
		checkForbiddenTokens,
		g.checkAllowList,
	} {
		if rej := check(sql); rej != nil {
			return Verdict{Stage: rej.Stage, Reason: rej.Reason}
		}
	}
	return Verdict{Allowed: true, SQL: g.EnforceRowLimit(sql)}
}

// Check reports the verdict as an error, for callers that only need pass/fail.
func (g *Gate) Check(sql string) error {
	return g.Validate(sql).Err()
}

func checkStatementKind(sql string) *RejectionError {
	if !selectPrefix.MatchString(strings.TrimSpace(sql)) {
		return &RejectionError{Stage: StageStatementKind, Reason: "not a SELECT statement"}
	}
	return nil
}

// checkForbiddenTokens matches plain substrings, so tokens inside string
// literals and identifiers such as updated_at are also rejected.
func checkForbiddenTokens(sql string) *RejectionError {
	lowered := strings.ToLower(sql)
	for _, tok := range forbiddenTokens {
		if strings.Contains(lowered, tok) {
			return &RejectionError{
				Stage:  StageForbiddenToken,
				Reason: fmt.Sprintf("forbidden token detected: %s", tok),
			}
		}
	}
	return nil
}

func (g *Gate) checkAllowList(sql string) *RejectionError {
	tokens := uniqueIdentifiers(strings.ToLower(sql))

	referencesTable := false
	for _, tok := range tokens {
		if g.policy.IsTable(tok) {
			referencesTable = true
			break
		}
	}
	if !referencesTable {
		return &RejectionError{Stage: StageAllowList, Reason: "no allowed table referenced"}
	}

	for _, tok := range tokens {
		if !g.tokenAllowed(tok) {
			return &RejectionError{
				Stage:  StageAllowList,
				Reason: fmt.Sprintf("identifier not allowed: %s", tok),
			}
		}
	}
	return nil
}

func (g *Gate) tokenAllowed(tok string) bool {
	if _, ok := sqlKeywords[tok]; ok {
		return true
	}
	if g.policy.IsTable(tok) || g.policy.IsColumn(tok) {
		return true
	}
	// Short names are tolerated as function names and aliases (date, strftime, m, t1).
	return len(tok) <= maxToleratedNameLen && tok[0] >= 'a' && tok[0] <= 'z'
}

func uniqueIdentifiers(lowered string) []string {
	matches := identifier.FindAllString(lowered, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// EnforceRowLimit appends LIMIT <max rows> unless the text already mentions
// limit anywhere. Applying it twice yields the same text as applying it once.
// Text carrying a line comment gets the clause on its own line so the comment
// cannot swallow it.
func (g *Gate) EnforceRowLimit(sql string) string {
	if limitClause.MatchString(sql) {
		return sql
	}
	trimmed := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sql), ";"))
	sep := " "
	if strings.Contains(trimmed, "--") {
		sep = "\n"
	}
	return fmt.Sprintf("%s%sLIMIT %d;", trimmed, sep, g.policy.MaxRows())
}
