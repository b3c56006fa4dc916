// Package apperrors defines the domain error taxonomy shared across the
// orchestration core, plus the retry and circuit-breaker helpers that consume
// it. Domain failures are explicit *Error values; panics are reserved for
// invariant violations.
package apperrors

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies an error for propagation and retry decisions.
type Kind int

const (
	// KindValidation - input failed schema or policy. Never retried.
	KindValidation Kind = iota
	// KindAuthorization - caller lacks permission. Never retried.
	KindAuthorization
	// KindInvalidState - operation illegal in the current state. Never retried.
	KindInvalidState
	// KindNotFound - entity missing. Caller may retry after creation.
	KindNotFound
	// KindConflict - concurrent modification (version mismatch). Engines retry
	// internally before surfacing.
	KindConflict
	// KindTransient - timeout, throttling, network. Retried with backoff.
	KindTransient
	// KindCircuitOpen - fast-fail due to an open breaker.
	KindCircuitOpen
	// KindScanFailed - sensitivity scan failure. Callers fail closed.
	KindScanFailed
	// KindInternal - unexpected; logged with correlation id, surfaced opaque.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindInvalidState:
		return "invalid_state"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindCircuitOpen:
		return "circuit_open"
	case KindScanFailed:
		return "scan_failed"
	default:
		return "internal"
	}
}

// Error is the single error type surfaced by the core. Code is a stable,
// machine-readable identifier; Message is human readable.
type Error struct {
	Kind          Kind
	Code          string
	Message       string
	Details       map[string]any
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by kind and code so sentinel comparisons work.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	if other.Code != "" && other.Code != e.Code {
		return false
	}
	return other.Kind == e.Kind
}

// WithDetail returns a copy of the error carrying an extra detail field.
func (e *Error) WithDetail(key string, value any) *Error {
	clone := *e
	clone.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

// WithCorrelationID returns a copy of the error tagged with a correlation id.
func (e *Error) WithCorrelationID(id string) *Error {
	clone := *e
	clone.CorrelationID = id
	return &clone
}

func newError(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error with a stable code.
func Validation(code, format string, args ...any) *Error {
	return newError(KindValidation, code, format, args...)
}

// Authorization creates an authorization error.
func Authorization(code, format string, args ...any) *Error {
	return newError(KindAuthorization, code, format, args...)
}

// InvalidState creates an invalid-state error (illegal transition, expired
// session and similar).
func InvalidState(code, format string, args ...any) *Error {
	return newError(KindInvalidState, code, format, args...)
}

// NotFound creates a not-found error for the given entity kind and id.
func NotFound(entity, id string) *Error {
	return newError(KindNotFound, entity+"_not_found", "%s %s not found", entity, id)
}

// Conflict creates a version-conflict error.
func Conflict(code, format string, args ...any) *Error {
	return newError(KindConflict, code, format, args...)
}

// Transient wraps an underlying error as retryable.
func Transient(code string, err error) *Error {
	return &Error{Kind: KindTransient, Code: code, Err: err}
}

// CircuitOpen creates a fast-fail error for an open breaker.
func CircuitOpen(backend string, retryIn string) *Error {
	return newError(KindCircuitOpen, "circuit_open",
		"backend %s is unavailable, circuit retries in %s", backend, retryIn)
}

// ScanFailed wraps a sensitivity scan failure. Callers treat it as
// requires-approval (fail closed).
func ScanFailed(err error) *Error {
	return &Error{Kind: KindScanFailed, Code: "sensitivity_scan_failed", Err: err,
		Message: "sensitivity scan failed"}
}

// Internal wraps an unexpected error.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Err: err,
		Message: "internal error"}
}

// KindOf returns the kind of err, defaulting to KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if isNetworkError(err) {
		return KindTransient
	}
	return KindInternal
}

// CodeOf returns the stable code of err, or "internal_error".
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "internal_error"
}

// IsRetryable reports whether the error may be retried with backoff.
// Validation, authorization, and invalid-state errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindTransient:
		return true
	case KindValidation, KindAuthorization, KindInvalidState, KindNotFound,
		KindCircuitOpen, KindScanFailed, KindConflict:
		return false
	}
	return isNetworkError(err)
}

// IsConflict reports whether the error is a concurrent-modification conflict.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"timeout",
		"deadline exceeded",
		"throttl",
		"service unavailable",
		"connection reset",
		"broken pipe",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
