// Package remote defines the failure categories of calls to the music API
// and its authorization endpoint.
package remote

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind categorizes a remote failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthenticationFailed
	KindUnauthorized
	KindRateLimited
	KindClientError
	KindServerError
	KindTimeout
	KindUnavailable
	KindDecodeFailed
	KindNotFound
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	case KindDecodeFailed:
		return "decode_failed"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a categorized remote failure.
type Error struct {
	Kind       Kind
	StatusCode int    // HTTP status, 0 when the failure happened before a response
	Reason     string // short description when there is no status
	Cause      error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrRateLimited          = &Error{Kind: KindRateLimited}
	ErrClientError          = &Error{Kind: KindClientError}
	ErrServerError          = &Error{Kind: KindServerError}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrUnavailable          = &Error{Kind: KindUnavailable}
	ErrDecodeFailed         = &Error{Kind: KindDecodeFailed}
	ErrNotFound             = &Error{Kind: KindNotFound}
)

// New returns an error of the given kind wrapping cause.
func New(kind Kind, status int, cause error) *Error {
	return &Error{Kind: kind, StatusCode: status, Cause: cause}
}

// AuthenticationFailed returns a credential exchange failure. Pass status 0
// and a reason when no HTTP status is available.
func AuthenticationFailed(status int, reason string, cause error) *Error {
	return &Error{Kind: KindAuthenticationFailed, StatusCode: status, Reason: reason, Cause: cause}
}

// FromStatus maps an HTTP status code to a kind.
func FromStatus(status int) Kind {
	switch {
	case status == 401:
		return KindUnauthorized
	case status == 404:
		return KindNotFound
	case status == 429:
		return KindRateLimited
	case status >= 400 && status < 500:
		return KindClientError
	case status >= 500 && status < 600:
		return KindServerError
	default:
		return KindUnknown
	}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches on kind so callers can compare against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.StatusCode == 0 || t.StatusCode == e.StatusCode)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err is worth trying again later.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindServerError, KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}
