// Package errors defines the application error taxonomy shared by services,
// repositories and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeForeignKey indicates a foreign key constraint violation.
	ErrCodeForeignKey ErrorCode = "foreign_key"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// ErrCodeNotAuthenticated indicates a missing or invalid session.
	ErrCodeNotAuthenticated ErrorCode = "not_authenticated"
	// ErrCodeNotAuthorized indicates an authenticated caller lacking role, membership or proof.
	ErrCodeNotAuthorized ErrorCode = "not_authorized"
	// ErrCodeVerificationInvalid indicates a missing, expired, consumed or mismatched
	// verification token or passkey challenge.
	ErrCodeVerificationInvalid ErrorCode = "verification_invalid"
	// ErrCodeConflictingFactor indicates a factor that already exists or the removal of the last one.
	ErrCodeConflictingFactor ErrorCode = "conflicting_factor"
	// ErrCodeStoreUnavailable indicates the durable store or the cache could not be reached.
	ErrCodeStoreUnavailable ErrorCode = "store_unavailable"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field is the specific field that caused the error (validation and conflict errors).
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newErr(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError { return newErr(ErrCodeNotFound, message) }

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newErr(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError { return newErr(ErrCodeConflict, message) }

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return newErr(ErrCodeConflict, fmt.Sprintf(format, args...))
}

// Validation creates a new Validation error.
func Validation(message string) *AppError { return newErr(ErrCodeValidation, message) }

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return newErr(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// ForeignKey creates a new ForeignKey error.
func ForeignKey(message string) *AppError { return newErr(ErrCodeForeignKey, message) }

// Internal creates a new Internal error.
func Internal(message string) *AppError { return newErr(ErrCodeInternal, message) }

// NotAuthenticated creates a new NotAuthenticated error.
func NotAuthenticated(message string) *AppError { return newErr(ErrCodeNotAuthenticated, message) }

// NotAuthorized creates a new NotAuthorized error.
func NotAuthorized(message string) *AppError { return newErr(ErrCodeNotAuthorized, message) }

// VerificationInvalid creates a new VerificationInvalid error.
func VerificationInvalid(message string) *AppError {
	return newErr(ErrCodeVerificationInvalid, message)
}

// ConflictingFactor creates a new ConflictingFactor error.
func ConflictingFactor(message string) *AppError {
	return newErr(ErrCodeConflictingFactor, message)
}

// StoreUnavailable wraps an infrastructure failure. It returns nil when err is nil.
func StoreUnavailable(err error, message string) *AppError {
	return Wrap(err, ErrCodeStoreUnavailable, message)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsForeignKey checks if an error is a ForeignKey error.
func IsForeignKey(err error) bool { return isCode(err, ErrCodeForeignKey) }

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// IsNotAuthenticated checks if an error is a NotAuthenticated error.
func IsNotAuthenticated(err error) bool { return isCode(err, ErrCodeNotAuthenticated) }

// IsNotAuthorized checks if an error is a NotAuthorized error.
func IsNotAuthorized(err error) bool { return isCode(err, ErrCodeNotAuthorized) }

// IsVerificationInvalid checks if an error is a VerificationInvalid error.
func IsVerificationInvalid(err error) bool { return isCode(err, ErrCodeVerificationInvalid) }

// IsConflictingFactor checks if an error is a ConflictingFactor error.
func IsConflictingFactor(err error) bool { return isCode(err, ErrCodeConflictingFactor) }

// IsStoreUnavailable checks if an error is a StoreUnavailable error.
func IsStoreUnavailable(err error) bool { return isCode(err, ErrCodeStoreUnavailable) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// HTTPStatus maps an error to the HTTP status code the transport should return.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case ErrCodeNotAuthorized, ErrCodeVerificationInvalid:
		return http.StatusForbidden
	case ErrCodeConflict, ErrCodeConflictingFactor:
		return http.StatusConflict
	case ErrCodeValidation, ErrCodeForeignKey:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
