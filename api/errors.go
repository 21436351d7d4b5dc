// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-timer library.

package api

import "fmt"

// Common errors used across the library.
var (
	// ErrQueueFull indicates the op queue rejected a Register/Cancel/Reset push.
	// Surfaced synchronously at the call site; the core never retries.
	ErrQueueFull = fmt.Errorf("op queue is full")

	// ErrCancelled indicates a timeout was cancelled before it fired.
	ErrCancelled = fmt.Errorf("timeout cancelled")

	// ErrShutdown indicates a still-scheduled timeout was cancelled by
	// driver teardown.
	ErrShutdown = fmt.Errorf("timer system shut down")

	// ErrNoCapacity indicates the entry arena is at max capacity.
	ErrNoCapacity = fmt.Errorf("timer out of capacity")

	// ErrStopped indicates an operation on a stopped timer system.
	ErrStopped = fmt.Errorf("timer system is stopped")

	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeQueueFull
	ErrCodeCancelled
	ErrCodeShutdown
	ErrCodeNoCapacity
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
