package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Configuration: fatal at startup or first use, never retried
	ErrCodeConfig         ErrorCode = "CONFIG_ERROR"
	ErrCodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Relay pipeline
	ErrCodeNoSponsorAvailable ErrorCode = "NO_SPONSOR_AVAILABLE"
	ErrCodeReceiptNotFound    ErrorCode = "RECEIPT_NOT_FOUND"
	ErrCodeIncompleteReceipt  ErrorCode = "INCOMPLETE_RECEIPT"
	ErrCodeSubmissionFailed   ErrorCode = "SUBMISSION_FAILED"
	ErrCodeSettlementFailed   ErrorCode = "SETTLEMENT_FAILED"

	// Session keys
	ErrCodeKeyExpired ErrorCode = "KEY_EXPIRED"
	ErrCodeKeyRevoked ErrorCode = "KEY_REVOKED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that carries an error code
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Config(message string) *AppError {
	return New(ErrCodeConfig, message)
}

func NotImplemented(capability string) *AppError {
	return New(ErrCodeNotImplemented, fmt.Sprintf("%s is not implemented", capability))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func NoSponsorAvailable(providers int) *AppError {
	return New(ErrCodeNoSponsorAvailable,
		fmt.Sprintf("no sponsor available: all %d configured providers failed", providers))
}

func ReceiptNotFound(opHash string, attempts int) *AppError {
	return New(ErrCodeReceiptNotFound,
		fmt.Sprintf("receipt not found for %s after %d attempts", opHash, attempts))
}

func IncompleteReceipt(txHash string, field string) *AppError {
	return New(ErrCodeIncompleteReceipt,
		fmt.Sprintf("receipt for %s is missing %s", txHash, field))
}

func SubmissionFailed(cause error) *AppError {
	return Wrap(ErrCodeSubmissionFailed, "Failed to submit operation", cause)
}

func SettlementFailed(approvalID string, cause error) *AppError {
	return Wrap(ErrCodeSettlementFailed,
		fmt.Sprintf("Settlement failed for approval %s", approvalID), cause)
}

func KeyExpired(keyID string) *AppError {
	return New(ErrCodeKeyExpired, fmt.Sprintf("Session key %s has expired", keyID))
}

func KeyRevoked(keyID string) *AppError {
	return New(ErrCodeKeyRevoked, fmt.Sprintf("Session key %s has been revoked", keyID))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsConfigError reports whether err is a configuration-class failure.
// These are never retried: the process is misconfigured, not unlucky.
func IsConfigError(err error) bool {
	code := GetCode(err)
	return code == ErrCodeConfig || code == ErrCodeNotImplemented
}
