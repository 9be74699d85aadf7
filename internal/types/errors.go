// Package types provides shared types, reason codes, and errors for the application.
package types

import (
	"errors"
	"fmt"
)

// Reason identifies why a URL, fetch, or upload was rejected.
// Reasons are machine-readable so callers and tests can assert on the exact
// cause instead of parsing free-text messages.
type Reason string

// Validator reasons. None of these are retryable without changing the input.
const (
	ReasonInvalidURL           Reason = "invalid_url"
	ReasonInvalidScheme        Reason = "invalid_scheme"
	ReasonMissingHostname      Reason = "missing_hostname"
	ReasonDeniedHostname       Reason = "denied_hostname"
	ReasonUnresolvableHostname Reason = "unresolvable_hostname"
	ReasonDisallowedAddress    Reason = "disallowed_address"
)

// Fetcher reasons. Timeout and ConnectionFailed may be retried by the caller
// with backoff; ResponseTooLarge should not be retried against the same target.
const (
	ReasonRedirectNotFollowed Reason = "redirect_not_followed"
	ReasonTimeout             Reason = "timeout"
	ReasonConnectionFailed    Reason = "connection_failed"
	ReasonResponseTooLarge    Reason = "response_too_large"
)

// Upload reasons. Both are caller-input errors, not transient.
const (
	ReasonOversizeUpload      Reason = "oversize_upload"
	ReasonDisallowedExtension Reason = "disallowed_extension"
)

// Sentinel errors for consistent error handling across the application.
// These can be checked with errors.Is() for type-safe error handling.
var (
	// Validator errors
	ErrInvalidURL           = errors.New("url could not be parsed")
	ErrInvalidScheme        = errors.New("url scheme must be http or https")
	ErrMissingHostname      = errors.New("url has no hostname")
	ErrDeniedHostname       = errors.New("hostname is denylisted")
	ErrUnresolvableHostname = errors.New("hostname did not resolve")
	ErrDisallowedAddress    = errors.New("address is not publicly routable")

	// Fetcher errors
	ErrRedirectNotFollowed = errors.New("target responded with a redirect; re-validate the new location")
	ErrFetchTimeout        = errors.New("fetch timed out")
	ErrConnectionFailed    = errors.New("connection to target failed")
	ErrResponseTooLarge    = errors.New("response body exceeds maximum size")

	// Upload errors
	ErrOversizeUpload      = errors.New("upload exceeds maximum size")
	ErrDisallowedExtension = errors.New("file extension is not allowed")

	// Verdict handoff errors
	ErrVerdictNotAllowed = errors.New("fetch requires an allowed verdict")
	ErrVerdictStale      = errors.New("verdict has no pinned address")
)

// FetchError provides detailed information about fetch failures.
// It implements the error interface and supports error unwrapping.
type FetchError struct {
	Reason   Reason // Machine-readable reason code
	URL      string // The URL that was being fetched
	Location string // Redirect target, set only for redirect_not_followed
	Message  string // Human-readable error message
	Err      error  // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the same target with backoff.
func (e *FetchError) Retryable() bool {
	return e.Reason == ReasonTimeout || e.Reason == ReasonConnectionFailed
}

// NewRedirectError creates an error for a redirect that was not followed.
func NewRedirectError(url, location string) *FetchError {
	return &FetchError{
		Reason:   ReasonRedirectNotFollowed,
		URL:      url,
		Location: location,
		Message:  "target attempted a redirect to " + location + "; submit the new URL for validation",
		Err:      ErrRedirectNotFollowed,
	}
}

// NewTimeoutError creates an error for a fetch that exceeded its deadline.
func NewTimeoutError(url string, err error) *FetchError {
	return &FetchError{
		Reason:  ReasonTimeout,
		URL:     url,
		Message: "fetch timed out",
		Err:     errors.Join(ErrFetchTimeout, err),
	}
}

// NewConnectionError creates an error for a failed connection or request.
func NewConnectionError(url string, err error) *FetchError {
	return &FetchError{
		Reason:  ReasonConnectionFailed,
		URL:     url,
		Message: "connection failed",
		Err:     errors.Join(ErrConnectionFailed, err),
	}
}

// NewTooLargeError creates an error for a response exceeding the size cap.
func NewTooLargeError(url string, limit int64) *FetchError {
	return &FetchError{
		Reason:  ReasonResponseTooLarge,
		URL:     url,
		Message: fmt.Sprintf("response body exceeds maximum size of %d bytes", limit),
		Err:     ErrResponseTooLarge,
	}
}
