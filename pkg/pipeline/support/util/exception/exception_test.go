package exception_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
)

func TestPipelineErrorFlags(t *testing.T) {
	orig := errors.New("boom")
	err := exception.NewPipelineError("client", "request failed", orig, true, false)

	assert.True(t, err.IsRetryable())
	assert.False(t, err.IsCritical())
	assert.Equal(t, "[client] request failed: boom", err.Error())
	assert.True(t, errors.Is(err, orig))
}

func TestErrorfExtractsTrailingError(t *testing.T) {
	orig := errors.New("connection reset")
	err := exception.Errorf("ledger", "append for period %s failed", "202509A", orig)

	assert.Equal(t, "append for period 202509A failed", err.Message)
	assert.Same(t, orig, errors.Unwrap(err))
	assert.False(t, err.IsRetryable())

	assert.True(t, err.WithRetryable().IsRetryable())
	assert.True(t, err.WithCritical().IsCritical())
}

func TestIsTemporary(t *testing.T) {
	assert.False(t, exception.IsTemporary(nil))
	assert.True(t, exception.IsTemporary(errors.New("dial tcp: connection refused")))
	assert.False(t, exception.IsTemporary(errors.New("invalid argument")))

	// PipelineError flag wins over message matching.
	notRetryable := exception.NewPipelineError("client", "timeout during validation", nil, false, false)
	assert.False(t, exception.IsTemporary(notRetryable))
}

func TestIsErrorOfType(t *testing.T) {
	assert.True(t, exception.IsErrorOfType(context.DeadlineExceeded, "context.DeadlineExceeded"))
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("wrapped: %w", context.Canceled), "context.Canceled"))
	assert.True(t, exception.IsErrorOfType(errors.New("HTTP 429 Too Many Requests"), "429"))
	assert.False(t, exception.IsErrorOfType(errors.New("not found"), "429"))
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))

	pe := exception.NewPipelineError("runner", "step timed out", errors.New("signal: killed"), false, true)
	assert.Equal(t, "step timed out", exception.ExtractErrorMessage(pe))
}
