// ABOUTME: Error taxonomy shared by gateway operations and HTTP handlers
// ABOUTME: Each Kind maps to one HTTP status; upstream failures keep remote status and body

package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindInvalidInput
	KindRateLimited
	KindConfiguration
	KindUpstream
	KindConflict
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidInput:
		return "invalid_input"
	case KindRateLimited:
		return "rate_limited"
	case KindConfiguration:
		return "configuration"
	case KindUpstream:
		return "upstream"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified gateway error.
type Error struct {
	Kind    Kind
	Message string

	// UpstreamStatus and UpstreamBody are set for KindUpstream.
	UpstreamStatus int
	UpstreamBody   string

	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindUpstream && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Kind == KindUpstream:
		return fmt.Sprintf("%s: upstream status %d", e.Message, e.UpstreamStatus)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status reported to callers.
// Upstream and configuration failures are both 500-class; the remote status
// travels in the body instead of replacing ours.
func (e *Error) Status() int {
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Unauthenticated reports a request with no verified actor.
func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

// InvalidInput reports missing or malformed request data.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// RateLimited reports a throttled request.
func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded, please try again later"}
}

// Configuration reports a required secret or endpoint that is not configured.
func Configuration(what string) *Error {
	return &Error{Kind: KindConfiguration, Message: what + " not configured"}
}

// Upstream reports a non-success response from a remote service.
func Upstream(msg string, status int, body string) *Error {
	return &Error{Kind: KindUpstream, Message: msg, UpstreamStatus: status, UpstreamBody: body}
}

// UpstreamTransport reports a remote call that failed before a response arrived.
func UpstreamTransport(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// Conflict reports a write that collides with existing state.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Internal wraps an unexpected failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
