package remote

import (
	"errors"
	"fmt"
)

// Error codes returned by remote adapters.
const (
	CodeUnavailable  = "unavailable"  // network / 5xx, retry later
	CodeRateLimited  = "rate_limited" // retry later
	CodeNotFound     = "not_found"
	CodeUnauthorized = "unauthorized"
	CodeRejected     = "rejected" // policy/state rejection, do not retry
	CodeInternal     = "internal"
)

// Error is a structured remote failure.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote: %s: %s", e.Code, e.Message)
}

// NewError builds a structured remote error.
func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func codeIs(err error, code string) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == code
}

// IsNotFound reports whether err is a remote not-found.
func IsNotFound(err error) bool { return codeIs(err, CodeNotFound) }

// IsRejected reports whether the remote refused the operation for policy or
// state reasons; retrying is futile.
func IsRejected(err error) bool {
	return codeIs(err, CodeRejected) || codeIs(err, CodeUnauthorized)
}

// IsTransient reports whether the failure is worth retrying on a later run.
func IsTransient(err error) bool {
	return codeIs(err, CodeUnavailable) || codeIs(err, CodeRateLimited)
}
