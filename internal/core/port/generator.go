package port

import "context"

// SQLGenerator turns a natural-language question into SQL text. Its output is
// never trusted.
type SQLGenerator interface {
	Generate(ctx context.Context, question string) (string, error)
}
