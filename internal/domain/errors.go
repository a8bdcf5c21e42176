package domain

import (
	"errors"
	"fmt"
)

// Error codes. Handlers map them to HTTP statuses; the relay reports their
// messages in error events.
const (
	EINVALID      = "invalid"
	EUNAUTHORIZED = "unauthorized"
	EFORBIDDEN    = "forbidden"
	ENOTFOUND     = "not_found"
	ETOOLARGE     = "too_large"
	ERATELIMIT    = "rate_limit"
	EQUOTA        = "quota_exceeded" // quota exhausted or capability missing from the tier
	EINTERNAL     = "internal"
	ENOTIMPL      = "not_impl"
)

// internalMessage replaces the message of every EINTERNAL error shown to a
// client.
const internalMessage = "An internal error occurred. Please try again later."

// Error is an application error. Message is safe to show to the user unless
// Code is EINTERNAL; Err is for logs only.
type Error struct {
	Code    string
	Op      string // e.g. "quota.consume"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Errorf creates an Error with a formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return newError(code, op, fmt.Sprintf(format, args...))
}

func asError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// ErrorCode returns the code of the outermost *Error in err's chain.
// Errors that carry none are internal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := asError(err); ok {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the message to show the user for err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := asError(err); ok && e.Code != EINTERNAL {
		return e.Message
	}
	return internalMessage
}

// ErrorOp returns the operation recorded on err, if any.
func ErrorOp(err error) string {
	if e, ok := asError(err); ok {
		return e.Op
	}
	return ""
}

func NotFound(op, resource, id string) *Error {
	return Errorf(ENOTFOUND, op, "%s with ID %q not found", resource, id)
}

func Invalid(op, message string) *Error { return newError(EINVALID, op, message) }

func Unauthorized(op, message string) *Error { return newError(EUNAUTHORIZED, op, message) }

func Forbidden(op, message string) *Error { return newError(EFORBIDDEN, op, message) }

// Internal wraps a failure the user cannot act on.
func Internal(err error, op, message string) *Error {
	e := newError(EINTERNAL, op, message)
	e.Err = err
	return e
}

func RateLimit(op string) *Error {
	return newError(ERATELIMIT, op, "Too many requests. Please try again later.")
}

// QuotaExceeded turns a denied evaluation into an error. reason is shown
// as-is.
func QuotaExceeded(op, reason string) *Error { return newError(EQUOTA, op, reason) }

// UpgradeRequired is for features the user's tier does not include. It shares
// EQUOTA so clients show the same upgrade prompt.
func UpgradeRequired(op, message string) *Error { return newError(EQUOTA, op, message) }

// IsQuotaExceeded reports whether err carries the EQUOTA code.
func IsQuotaExceeded(err error) bool {
	return ErrorCode(err) == EQUOTA
}
