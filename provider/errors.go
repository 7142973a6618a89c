package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy every provider family converges on.
// Machine-readable handling uses the kind plus the native error code, never
// string matching on messages.
type ErrorKind int

const (
	// Timeout covers per-attempt deadline expiry and backend timeouts.
	Timeout ErrorKind = iota

	// RateLimited signals platform-level throttling.
	RateLimited

	// ContentFiltered covers content-safety and IP-infringement rejections.
	ContentFiltered

	// InvalidParameter covers malformed or out-of-range request parameters.
	InvalidParameter

	// QuotaExhausted covers exhausted billing quota or credit balance.
	QuotaExhausted

	// ModelNotFound covers unknown or unregistered model names.
	ModelNotFound

	// AccessDenied covers authentication and permission failures.
	AccessDenied

	// ProviderError is the fallback for unmapped provider-side failures.
	ProviderError

	// ServiceError covers backend outages and overload conditions.
	ServiceError
)

var errorKindNames = map[ErrorKind]string{
	Timeout:          "timeout",
	RateLimited:      "rate_limited",
	ContentFiltered:  "content_filtered",
	InvalidParameter: "invalid_parameter",
	QuotaExhausted:   "quota_exhausted",
	ModelNotFound:    "model_not_found",
	AccessDenied:     "access_denied",
	ProviderError:    "provider_error",
	ServiceError:     "service_error",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// Retryable reports whether a failure of this kind is transient. Retrying a
// non-retryable kind cannot change the outcome, so the retry engine fails
// fast on the first occurrence.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ContentFiltered, InvalidParameter, QuotaExhausted, ModelNotFound, AccessDenied:
		return false
	default:
		return true
	}
}

// APIError is the structured error every provider family produces. It keeps
// the originating provider and the native error code for diagnostics
// alongside the shared kind and a human-readable message.
type APIError struct {
	Kind       ErrorKind
	Provider   string
	Code       string
	HTTPStatus int
	Message    string
	cause      error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s, status %d): %s", e.Provider, e.Kind, e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.HTTPStatus, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// WithCause attaches the underlying transport error, preserving it for
// errors.Is/As inspection.
func (e *APIError) WithCause(err error) *APIError {
	e.cause = err
	return e
}

// NewAPIError constructs an APIError for the given provider.
func NewAPIError(kind ErrorKind, providerName, code string, status int, message string) *APIError {
	return &APIError{
		Kind:       kind,
		Provider:   providerName,
		Code:       code,
		HTTPStatus: status,
		Message:    message,
	}
}

// KindOf extracts the ErrorKind from err. Context deadline expiry maps to
// Timeout, anything else unrecognized to ProviderError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return ProviderError
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}
