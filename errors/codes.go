package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Signal errors, delivered through OnError.
const (
	// ErrCodeUpstream indicates a source failed to produce a value.
	ErrCodeUpstream ErrorCode = "UPSTREAM_ERROR"
	// ErrCodeOperator indicates a user-supplied transform, predicate or mapper failed.
	ErrCodeOperator ErrorCode = "OPERATOR_ERROR"
	// ErrCodeTimeout indicates no signal arrived within the allowed time.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeOverflow indicates a producer could not deliver because demand was exhausted.
	ErrCodeOverflow ErrorCode = "OVERFLOW"
	// ErrCodeCancelled indicates a subscription was cancelled before it terminated.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// Engine errors, raised as panics or returned from constructors.
const (
	// ErrCodeProtocolViolation indicates the publisher/subscriber contract was broken.
	ErrCodeProtocolViolation ErrorCode = "PROTOCOL_VIOLATION"
	// ErrCodeInvalidConfig indicates the engine configuration failed validation.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

var terminalCodes = map[ErrorCode]bool{
	ErrCodeUpstream: true,
	ErrCodeOperator: true,
	ErrCodeTimeout:  true,
	ErrCodeOverflow: true,
}

// IsSignalCode returns true if errors with this code travel downstream as an Error signal.
func IsSignalCode(code ErrorCode) bool {
	return terminalCodes[code]
}
