// Package errors provides error code definitions for the offline sync engine.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
)

// ErrorCode represents a unique, stable error code surfaced to callers.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"
	ErrDatabase ErrorCode = "DATABASE_ERROR"

	// Sync errors
	ErrTransientNetwork ErrorCode = "TRANSIENT_NETWORK"
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrConflictDetected ErrorCode = "CONFLICT_DETECTED"
	ErrStoreExhausted   ErrorCode = "STORE_EXHAUSTED"
	ErrTerminalRetry    ErrorCode = "TERMINAL_RETRY_FAILURE"
	ErrSyncInProgress   ErrorCode = "SYNC_IN_PROGRESS"
	ErrNoData           ErrorCode = "NO_DATA_AVAILABLE"
	ErrQueueFull        ErrorCode = "QUEUE_FULL"
	ErrUnknownEntity    ErrorCode = "UNKNOWN_ENTITY_TYPE"
)

// AppError represents an engine error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code extracts the error code from an error chain, or ErrInternal.
func Code(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsRetryable reports whether a failed remote attempt should be retried
// through the sync queue. Validation rejections and conflicts are not
// retryable; timeouts and transport failures are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch Code(err) {
	case ErrValidation, ErrConflictDetected, ErrStoreExhausted, ErrInvalid:
		return false
	case ErrTransientNetwork:
		return true
	}
	// Timeouts classify as transient network failures.
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	return false
}
