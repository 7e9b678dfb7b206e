// Package retry defines the retry policy applied to transient failures of
// the batch API client. The policy is an explicit object (max attempts,
// backoff schedule, retryable-status predicate) passed into the client,
// independent of any particular HTTP library.
package retry

import (
	"time"

	"github.com/tigerroll/merchpipe/pkg/pipeline/core/config"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
)

// Policy decides whether a failed attempt may be retried and how long to
// wait before the next attempt.
type Policy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// RetryableStatus determines if an HTTP status code is transient.
	RetryableStatus(code int) bool
	// BackoffInterval returns the waiting time before the given attempt
	// (attempt numbering starts at 1 for the first retry).
	BackoffInterval(attempt int) time.Duration
	// MaxAttempts returns the maximum number of attempts, including the first.
	MaxAttempts() int
}

// exponentialPolicy implements Policy with exponential backoff capped at a
// maximum interval.
type exponentialPolicy struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	factor          float64
	retryableCodes  map[int]bool
	retryableNames  []string
}

// NewPolicy builds a Policy from retry configuration. Zero or missing values
// fall back to conservative defaults (4 attempts, 1s initial, 30s cap,
// factor 2).
func NewPolicy(cfg config.RetryConfig) Policy {
	p := &exponentialPolicy{
		maxAttempts:     cfg.MaxAttempts,
		initialInterval: time.Duration(cfg.InitialInterval) * time.Millisecond,
		maxInterval:     time.Duration(cfg.MaxInterval) * time.Millisecond,
		factor:          cfg.Factor,
		retryableCodes:  make(map[int]bool, len(cfg.RetryableStatusCodes)),
	}
	for _, code := range cfg.RetryableStatusCodes {
		p.retryableCodes[code] = true
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = 4
	}
	if p.initialInterval <= 0 {
		p.initialInterval = time.Second
	}
	if p.maxInterval <= 0 {
		p.maxInterval = 30 * time.Second
	}
	if p.factor <= 1 {
		p.factor = 2.0
	}
	return p
}

// MaxAttempts returns the maximum number of attempts.
func (p *exponentialPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry reports whether the error is transient. PipelineError flags
// take precedence; otherwise common temporary network conditions qualify.
func (p *exponentialPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return exception.IsTemporary(err)
}

// RetryableStatus reports whether the HTTP status is in the configured
// transient set.
func (p *exponentialPolicy) RetryableStatus(code int) bool {
	return p.retryableCodes[code]
}

// BackoffInterval returns initialInterval * factor^(attempt-1), capped at
// the maximum interval.
func (p *exponentialPolicy) BackoffInterval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	interval := float64(p.initialInterval)
	for i := 1; i < attempt; i++ {
		interval *= p.factor
		if time.Duration(interval) >= p.maxInterval {
			return p.maxInterval
		}
	}
	d := time.Duration(interval)
	if d > p.maxInterval {
		return p.maxInterval
	}
	return d
}

var _ Policy = (*exponentialPolicy)(nil)
