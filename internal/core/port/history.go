package port

import (
	"context"

	"github.com/guillermoBallester/nlquery/internal/core/domain"
)

// HistoryLog is the append-only audit log of pipeline attempts.
type HistoryLog interface {
	Append(ctx context.Context, rec domain.HistoryRecord) (domain.HistoryRecord, error)
	List(ctx context.Context) []domain.HistoryRecord
	Clear(ctx context.Context) error
	Close() error
}
