package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
)

func TestBackoffIsExponentialAndCapped(t *testing.T) {
	p := NewPolicy(config.RetryConfig{
		MaxAttempts:     5,
		InitialInterval: 100,
		MaxInterval:     1000,
		Factor:          2.0,
	})

	assert.Equal(t, 100*time.Millisecond, p.BackoffInterval(1))
	assert.Equal(t, 200*time.Millisecond, p.BackoffInterval(2))
	assert.Equal(t, 400*time.Millisecond, p.BackoffInterval(3))
	assert.Equal(t, 800*time.Millisecond, p.BackoffInterval(4))
	// Capped at the maximum interval from attempt 5 on.
	assert.Equal(t, time.Second, p.BackoffInterval(5))
	assert.Equal(t, time.Second, p.BackoffInterval(10))
}

func TestRetryableStatus(t *testing.T) {
	p := NewPolicy(config.RetryConfig{RetryableStatusCodes: []int{429, 503}})

	assert.True(t, p.RetryableStatus(429))
	assert.True(t, p.RetryableStatus(503))
	assert.False(t, p.RetryableStatus(404))
	assert.False(t, p.RetryableStatus(401))
}

func TestShouldRetryHonorsErrorFlags(t *testing.T) {
	p := NewPolicy(config.RetryConfig{})

	retryable := exception.NewPipelineError("client", "rate limited", nil, true, false)
	fatal := exception.NewPipelineError("client", "bad request", nil, false, false)

	assert.True(t, p.ShouldRetry(retryable))
	assert.False(t, p.ShouldRetry(fatal))
	assert.False(t, p.ShouldRetry(nil))
	assert.True(t, p.ShouldRetry(errors.New("read tcp: i/o timeout")))
}

func TestDefaultsApplied(t *testing.T) {
	p := NewPolicy(config.RetryConfig{})
	assert.Equal(t, 4, p.MaxAttempts())
	assert.Equal(t, time.Second, p.BackoffInterval(1))
}
