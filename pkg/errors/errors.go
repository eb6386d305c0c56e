package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure by whether repeating the call can help
type Kind string

const (
	KindTransient Kind = "transient"
	KindPermanent Kind = "permanent"
	KindUnknown   Kind = "unknown"
)

// Error is a failure reported by a metric or entity source
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient builds a retry-worthy error
func Transient(format string, args ...interface{}) *Error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...)}
}

// Permanent builds an error that repeating the call will not fix
func Permanent(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPermanent, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an arbitrary error
func Wrap(kind Kind, err error, code int) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Code: code, Err: err}
}

// KindOf reports the kind carried by err. Errors without a kind are unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable checks if an error kind should be retried
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTransient, KindUnknown:
		return true
	default:
		return false
	}
}

// KindFromStatusCode maps an HTTP status code onto a failure kind
func KindFromStatusCode(statusCode int) Kind {
	switch {
	case statusCode == 0: // Network error
		return KindTransient
	case statusCode == 429:
		return KindTransient
	case statusCode >= 500:
		return KindTransient
	case statusCode == 400, statusCode == 401, statusCode == 403, statusCode == 404:
		return KindPermanent
	default:
		return KindUnknown
	}
}
