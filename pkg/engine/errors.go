package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and
// continue-on-failure decisions.
type ErrorClass string

const (
	// ErrorClassTransient indicates a failure that may clear on the next
	// poll tick. Examples: resource momentarily not found, apiserver blips.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable failure for the
	// current resource. Examples: rejected descriptor, provisioning failure
	// reported by the control plane.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassDegraded indicates a condition the engine degrades around
	// rather than fails on. Example: a resource whose sub-components cannot
	// be introspected at all.
	ErrorClassDegraded ErrorClass = "degraded"
)

// DeployError represents a classified error with resource context.
type DeployError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *DeployError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *DeployError) Unwrap() error {
	return e.Err
}

func (e *DeployError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *DeployError) Is(target error) bool {
	t, ok := target.(*DeployError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *DeployError {
	return &DeployError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *DeployError {
	return &DeployError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// NewDegradedError creates a new degraded error.
func NewDegradedError(message string, err error) *DeployError {
	return &DeployError{Class: ErrorClassDegraded, Message: message, Err: err}
}

// WithCode adds an error code to an error.
func (e *DeployError) WithCode(code string) *DeployError {
	e.Code = code
	return e
}

// WithResource adds resource context to an error.
func (e *DeployError) WithResource(resource string) *DeployError {
	e.Resource = resource
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsNotFound returns true if the error carries the not-found code.
// A momentarily missing resource is treated as not-yet-ready, not terminal.
func IsNotFound(err error) bool {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Code == ErrCodeNotFound
	}
	return false
}

// IsIntrospection returns true if the error indicates the resource's
// sub-components cannot be enumerated at all. The poller degrades this to
// an optimistic success rather than failing the resource.
func IsIntrospection(err error) bool {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Code == ErrCodeIntrospection
	}
	return false
}

// Common error codes.
const (
	ErrCodeApplyFailed   = "APPLY_FAILED"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeIntrospection = "INTROSPECTION_FAILED"
	ErrCodeQueryFailed   = "QUERY_FAILED"
	ErrCodePanic         = "UNHANDLED_PANIC"
	ErrCodeValidation    = "VALIDATION_ERROR"
)
