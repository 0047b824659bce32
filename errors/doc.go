// Package errors provides the error taxonomy of the reactive engine.
//
// Every error a stream terminates with is either raised by a source
// (UPSTREAM_ERROR), raised by a user-supplied function inside an operator
// (OPERATOR_ERROR) or produced by the engine itself (TIMEOUT, OVERFLOW).
// Misuse of the demand protocol is reported as PROTOCOL_VIOLATION and is
// raised as a panic rather than delivered as a signal.
//
// AppError wraps the original cause, so errors.Is and errors.As from the
// standard library keep working on stream errors:
//
//	err := pipeline.Collect(ctx, p)
//	if errors.HasCode(err, errors.ErrCodeOperator) { ... }
package errors
