package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified error type of the engine.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// --- Constructors ---

// Upstream wraps an error raised by a source.
func Upstream(source string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeUpstream, Message: fmt.Sprintf("source %s failed", source),
		Details: map[string]any{"source": source}, Cause: cause,
	}
}

// Operator wraps an error raised by a user-supplied function inside an operator.
func Operator(operator string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeOperator, Message: fmt.Sprintf("operator %s failed", operator),
		Details: map[string]any{"operator": operator}, Cause: cause,
	}
}

// OperatorPanic converts a recovered panic value into an operator error.
func OperatorPanic(operator string, recovered any) *AppError {
	if err, ok := recovered.(error); ok {
		return Operator(operator, err).WithDetail("panic", true)
	}
	return Operator(operator, fmt.Errorf("panic: %v", recovered)).WithDetail("panic", true)
}

// ProtocolViolation reports a broken publisher/subscriber contract.
func ProtocolViolation(rule string) *AppError {
	return &AppError{
		Code: ErrCodeProtocolViolation, Message: rule,
	}
}

// Timeout creates an error for a stream that produced no signal in time.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s timed out", operation),
		Details: map[string]any{"operation": operation},
	}
}

// Overflow creates an error for a producer that ran out of demand.
func Overflow(source string) *AppError {
	return &AppError{
		Code: ErrCodeOverflow, Message: fmt.Sprintf("%s could not emit due to lack of demand", source),
		Details: map[string]any{"source": source},
	}
}

// Cancelled creates an error describing a subscription cancelled before termination.
func Cancelled(reason string) *AppError {
	return &AppError{Code: ErrCodeCancelled, Message: reason}
}

// InvalidConfig creates an error for a configuration that failed validation.
func InvalidConfig(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidConfig, Message: message}
}

// --- Inspection ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsProtocolViolation reports whether err is a protocol violation.
func IsProtocolViolation(err error) bool {
	return HasCode(err, ErrCodeProtocolViolation)
}
