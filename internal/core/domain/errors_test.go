package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyExecutionError(t *testing.T) {
	t.Run("caller canceled", func(t *testing.T) {
		parent, cancel := context.WithCancel(context.Background())
		bounded, cancelBounded := context.WithTimeout(parent, time.Minute)
		defer cancelBounded()
		cancel()

		err := ClassifyExecutionError(parent, bounded, errors.New("interrupted"))
		assert.ErrorIs(t, err, ErrCanceled)
		assert.NotErrorIs(t, err, ErrTimeout)
	})

	t.Run("statement timeout", func(t *testing.T) {
		parent := context.Background()
		bounded, cancel := context.WithTimeout(parent, time.Nanosecond)
		defer cancel()
		<-bounded.Done()

		err := ClassifyExecutionError(parent, bounded, errors.New("interrupted"))
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("driver reports cancellation", func(t *testing.T) {
		ctx := context.Background()
		err := ClassifyExecutionError(ctx, ctx, context.Canceled)
		assert.ErrorIs(t, err, ErrCanceled)
	})

	t.Run("store fault", func(t *testing.T) {
		ctx := context.Background()
		err := ClassifyExecutionError(ctx, ctx, errors.New("no such table: foo"))
		assert.ErrorIs(t, err, ErrExecutionFailed)

		var execErr *ExecutionError
		assert.True(t, errors.As(err, &execErr))
		assert.Equal(t, "no such table: foo", execErr.Message)
		assert.Equal(t, "statement execution failed: no such table: foo", err.Error())
	})
}

func TestRejectionError(t *testing.T) {
	err := &RejectionError{Stage: StageAllowList, Reason: "no allowed table referenced"}
	assert.ErrorIs(t, err, ErrValidationRejected)
	assert.Equal(t, "query rejected: no allowed table referenced", err.Error())
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "abc", NormalizeValue([]byte("abc")))
	assert.Nil(t, NormalizeValue(nil))
	assert.Equal(t, int64(4), NormalizeValue(int64(4)))
}
