// Package apperr defines the error taxonomy shared by capture, the gateways,
// the workflow and the case repository.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes an error.
type Kind string

const (
	// Capture layer. Terminal for the capture session.
	KindPermissionDenied  Kind = "PERMISSION_DENIED"
	KindDeviceUnavailable Kind = "DEVICE_UNAVAILABLE"

	// Gateway layer. Recoverable: the workflow reverts to its last stable state.
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
	KindUnsupportedFormat  Kind = "UNSUPPORTED_FORMAT"
	KindTimeout            Kind = "TIMEOUT"
	KindUnknown            Kind = "UNKNOWN"

	KindValidation   Kind = "VALIDATION"
	KindNotFound     Kind = "NOT_FOUND"
	KindInvalidState Kind = "INVALID_STATE"
	KindInternal     Kind = "INTERNAL"
)

// Recoverable reports whether the kind leaves the caller free to retry.
func (k Kind) Recoverable() bool {
	switch k {
	case KindServiceUnavailable, KindUnsupportedFormat, KindTimeout, KindUnknown,
		KindValidation, KindNotFound, KindInvalidState:
		return true
	}
	return false
}

// Error is the application error type.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to see the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation creates a validation error.
func Validation(message string) error {
	return New(KindValidation, message)
}

// NotFound creates a not found error for a resource id.
func NotFound(resource, id string) error {
	return New(KindNotFound, fmt.Sprintf("%s with ID '%s' not found", resource, id))
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
// for foreign errors. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return Is(err, KindNotFound)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return Is(err, KindValidation)
}
