package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrValidationRejected     = errors.New("query rejected")
	ErrTimeout                = errors.New("statement timed out")
	ErrCanceled               = errors.New("statement canceled")
	ErrExecutionFailed        = errors.New("statement execution failed")
	ErrAuditPersistenceFailed = errors.New("audit persistence failed")
	ErrBypassNotAllowed       = errors.New("validation bypass is disabled")
	ErrEmptyGeneration        = errors.New("model returned empty SQL")
	ErrGenerationFailed       = errors.New("SQL generation failed")
	ErrEmptyQuestion          = errors.New("question is required")
)

// Stage identifies which gate check produced a verdict.
type Stage string

const (
	StageStatementKind  Stage = "statement_kind"
	StageForbiddenToken Stage = "forbidden_token"
	StageAllowList      Stage = "allow_list"
)

// RejectionError carries the gate stage and human-readable reason for a rejected query.
type RejectionError struct {
	Stage  Stage
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidationRejected, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrValidationRejected
}

// ExecutionError wraps a store-level fault. Message is the store's own text
// and is safe to surface to the caller.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrExecutionFailed, e.Message)
}

func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExecutionFailed}
	}
	return []error{ErrExecutionFailed, e.Err}
}

// NewExecutionError wraps err as an ExecutionError.
func NewExecutionError(err error) *ExecutionError {
	return &ExecutionError{Message: err.Error(), Err: err}
}

// ClassifyExecutionError maps a store fault onto the error taxonomy. parent is
// the caller's context; bounded is the context carrying the statement timeout.
func ClassifyExecutionError(parent, bounded context.Context, err error) error {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, parent.Err())
	case errors.Is(bounded.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	default:
		return NewExecutionError(err)
	}
}
