// Package exception provides custom error types and error handling utilities
// for the merchpipe pipeline. It standardizes errors raised during pipeline
// and download processing so they can be classified by retry and criticality
// policies.
package exception

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
)

// errorRegistry maps error names referenced in configuration to concrete Go
// error instances, held as singletons for comparison with errors.Is.
var errorRegistry = make(map[string]error)

// registryMutex protects access to errorRegistry.
var registryMutex sync.RWMutex

// RegisterErrorType registers an error type in the registry. Registered names
// may be referenced in retry configuration and by IsErrorOfType.
// If prototype is nil or name is empty, this function panics.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("cannot register nil prototype for name: %s", name))
	}

	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered checks if the specified error type name is registered.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// PipelineError is a custom error type for failures during pipeline
// processing. It carries the component where the error occurred, a message,
// the wrapped original error, and flags indicating whether the error is
// retryable and whether it must halt the run.
type PipelineError struct {
	// Component indicates where the error occurred (e.g., "controller",
	// "runner", "client", "ledger", "config").
	Component string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// isRetryable indicates whether the failed operation may be retried.
	isRetryable bool
	// isCritical indicates whether the error must halt the entire run.
	isCritical bool
}

// NewPipelineError creates a new PipelineError instance.
func NewPipelineError(component, message string, originalErr error, retryable, critical bool) *PipelineError {
	return &PipelineError{
		Component:   component,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: retryable,
		isCritical:  critical,
	}
}

// Errorf creates a PipelineError with a formatted message. The error is
// neither retryable nor critical; use the With* methods to adjust flags.
func Errorf(component, format string, a ...interface{}) *PipelineError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return &PipelineError{
		Component:   component,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
	}
}

// WithRetryable marks the error as retryable and returns it.
func (e *PipelineError) WithRetryable() *PipelineError {
	e.isRetryable = true
	return e
}

// WithCritical marks the error as run-halting and returns it.
func (e *PipelineError) WithCritical() *PipelineError {
	e.isCritical = true
	return e
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Component, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Component, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *PipelineError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *PipelineError) IsRetryable() bool {
	return e.isRetryable
}

// IsCritical returns whether this error must halt the run.
func (e *PipelineError) IsCritical() bool {
	return e.isCritical
}

// IsPipelineError determines if the given error is of type PipelineError.
func IsPipelineError(err error) bool {
	if err == nil {
		return false
	}
	var pe *PipelineError
	return errors.As(err, &pe)
}

// IsTemporary determines if an error is temporary (network error, timeout,
// connection refused). If the error is a PipelineError, its retryable flag
// takes precedence. This function feeds the retry logic.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

// IsErrorOfType checks if an error matches a registered error name or a
// substring of its message. It checks registered sentinel errors first
// (errors.Is), then walks the wrap chain comparing message substrings.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	targetError, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, targetError) {
		return true
	}

	for currentErr := err; currentErr != nil; currentErr = errors.Unwrap(currentErr) {
		if strings.Contains(currentErr.Error(), errorTypeName) {
			return true
		}
	}
	return false
}

// ExtractErrorMessage extracts the error message string from an error.
// For PipelineError, it returns the cleaner Message field.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

func init() {
	// Register sentinel errors so retry configuration can reference them by
	// constant name.
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
}
