// Package errors defines the error taxonomy shared across gravyvalet.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for invocation records and API responses.
type Kind string

// Error kinds
const (
	// KindInvalidArguments is returned when operation input fails schema binding.
	KindInvalidArguments Kind = "InvalidArguments"

	// KindUnauthorized is returned when the caller is not authenticated.
	KindUnauthorized Kind = "Unauthorized"

	// KindForbidden is returned when the caller lacks access to the target
	// resource or account.
	KindForbidden Kind = "Forbidden"

	// KindNotFound is returned when the target entity does not exist.
	KindNotFound Kind = "NotFound"

	// KindCredentialError is returned when credentials are missing, malformed,
	// or a refresh failed.
	KindCredentialError Kind = "CredentialError"

	// KindProviderError is returned when the external provider returned an
	// error status.
	KindProviderError Kind = "ProviderError"

	// KindInvalidRelativeURL is returned when an implementation tried to
	// escape its prefix URL. Programmer error.
	KindInvalidRelativeURL Kind = "InvalidRelativeURL"

	// KindTransportError is returned on network-level failures to a provider.
	KindTransportError Kind = "TransportError"

	// KindTimeout is returned when an invocation deadline was reached.
	KindTimeout Kind = "Timeout"

	// KindCancelled is returned when an invocation was aborted.
	KindCancelled Kind = "Cancelled"

	// KindDibsDenied is returned when a concurrent execution lease was refused.
	KindDibsDenied Kind = "DibsDenied"

	// KindInvalidCredentials is returned when a credentials write violates a
	// format invariant.
	KindInvalidCredentials Kind = "InvalidCredentials"

	// KindUnexpectedAddonError is returned on unclassified implementation failure.
	KindUnexpectedAddonError Kind = "UnexpectedAddonError"
)

// Error represents a classified gravyvalet error.
type Error struct {
	// Kind is the error classification.
	Kind Kind

	// Message is a developer-facing description, safe to return over the wire.
	Message string

	// ProviderStatus carries the external provider's HTTP status for
	// KindProviderError; zero otherwise.
	ProviderStatus int

	// Cause is the underlying error, never serialized to callers.
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Newf creates a classified error with a formatted message and no cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvalidArguments creates a KindInvalidArguments error.
func InvalidArguments(message string, cause error) *Error {
	return New(KindInvalidArguments, message, cause)
}

// Forbidden creates a KindForbidden error.
func Forbidden(message string) *Error {
	return New(KindForbidden, message, nil)
}

// NotFound creates a KindNotFound error.
func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

// CredentialError creates a KindCredentialError error.
func CredentialError(message string, cause error) *Error {
	return New(KindCredentialError, message, cause)
}

// ProviderError creates a KindProviderError carrying the provider's status.
func ProviderError(status int, message string) *Error {
	return &Error{Kind: KindProviderError, Message: message, ProviderStatus: status}
}

// TransportError creates a KindTransportError error.
func TransportError(message string, cause error) *Error {
	return New(KindTransportError, message, cause)
}

// InvalidCredentials creates a KindInvalidCredentials error.
func InvalidCredentials(message string) *Error {
	return New(KindInvalidCredentials, message, nil)
}

// DibsDenied creates a KindDibsDenied error.
func DibsDenied(message string) *Error {
	return New(KindDibsDenied, message, nil)
}

// KindOf extracts the Kind from err, classifying unknown errors as
// KindUnexpectedAddonError.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnexpectedAddonError
}

// HTTPStatus maps an error kind to the status returned by the API layer.
// Stack traces and causes never cross the wire.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidArguments, KindInvalidCredentials:
		return http.StatusBadRequest
	case KindUnauthorized, KindCredentialError:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDibsDenied:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindProviderError, KindTransportError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
