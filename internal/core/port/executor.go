package port

import (
	"context"
	"time"

	"github.com/guillermoBallester/nlquery/internal/core/domain"
)

// QueryExecutor runs an already validated statement. A non-positive timeout
// selects the executor's default statement timeout.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string, timeout time.Duration) (*domain.ExecutionResult, error)
}
