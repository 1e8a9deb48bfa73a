package port

import "github.com/guillermoBallester/nlquery/internal/core/domain"

// QueryValidator decides whether SQL text may be executed.
type QueryValidator interface {
	Validate(sql string) domain.Verdict
	EnforceRowLimit(sql string) string
	Policy() *domain.AllowListPolicy
}
