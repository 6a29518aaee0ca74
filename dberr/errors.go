// Package dberr defines the backend-neutral error taxonomy.
//
// Every failure that crosses the library boundary is a *StructuredError:
// a stable type, a stable code, a localization key plus parameters, and a
// transience flag. Raw driver errors never escape; they are reduced to
// diagnostic text in ProviderDetails.
package dberr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
)

// Type categorizes a failure. The set is closed: callers branch on Type
// programmatically instead of matching vendor message text.
type Type string

const (
	// TypeTimeout indicates the operation exceeded its time budget or was
	// canceled by the caller.
	TypeTimeout Type = "TIMEOUT"

	// TypeDeadlock indicates the backend chose this session as a
	// deadlock or serialization victim.
	TypeDeadlock Type = "DEADLOCK"

	// TypeConnectionFailure indicates the session could not reach, or
	// lost, the backend.
	TypeConnectionFailure Type = "CONNECTION_FAILURE"

	// TypeResourceLimit indicates a backend resource was exhausted
	// (memory, connections, cursors, disk).
	TypeResourceLimit Type = "RESOURCE_LIMIT"

	// TypeValidation indicates the command was rejected before any
	// backend call was made.
	TypeValidation Type = "VALIDATION_ERROR"

	// TypeSyntax indicates the backend rejected the statement text or a
	// referenced object.
	TypeSyntax Type = "SYNTAX_ERROR"

	// TypeUnknown is the fallback for unclassified failures. The raw
	// backend code and type name are preserved in ProviderDetails.
	TypeUnknown Type = "UNKNOWN"
)

// DefaultTransient reports the type-level retry default. Individual
// translation rules may override it: authentication failures and cursor
// exhaustion are non-transient even though their types default to true.
func (t Type) DefaultTransient() bool {
	switch t {
	case TypeTimeout, TypeDeadlock, TypeConnectionFailure, TypeResourceLimit:
		return true
	default:
		return false
	}
}

// StructuredError is the single failure shape exposed to callers.
//
// Transient is derived once at translation time from Type plus any
// per-rule override; consumers must not re-derive it from Type.
type StructuredError struct {
	// Type is the taxonomy category.
	Type Type

	// Code is a stable, provider-scoped identifier (e.g. "PG_40P01",
	// "ORA_01000", "VAL_ALLOWLIST").
	Code string

	// MessageKey is a localization key resolved through the message
	// catalog; MessageParams are its formatting arguments.
	MessageKey    string
	MessageParams []any

	// Transient reports whether a retry without side-effect duplication
	// is considered safe.
	Transient bool

	// ProviderDetails carries the backend's raw code and message as
	// diagnostic text. Never a live driver error value.
	ProviderDetails string
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.ProviderDetails != "" {
		return fmt.Sprintf("%s [%s]: %s (%s)", e.Type, e.Code, e.message(), e.ProviderDetails)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Type, e.Code, e.message())
}

func (e *StructuredError) message() string {
	return DefaultPrinter().Sprintf(e.MessageKey, e.MessageParams...)
}

// New builds a StructuredError with the type-level transience default.
func New(t Type, code, messageKey string, params ...any) *StructuredError {
	return &StructuredError{
		Type:          t,
		Code:          code,
		MessageKey:    messageKey,
		MessageParams: params,
		Transient:     t.DefaultTransient(),
	}
}

// NewNonTransient builds a StructuredError with transience forced off,
// regardless of the type-level default.
func NewNonTransient(t Type, code, messageKey string, params ...any) *StructuredError {
	e := New(t, code, messageKey, params...)
	e.Transient = false
	return e
}

// NewValidation builds a validation failure. Validation failures are
// raised before any backend call and are never transient.
func NewValidation(code, messageKey string, params ...any) *StructuredError {
	return New(TypeValidation, code, messageKey, params...)
}

// WithDetails attaches provider diagnostic text and returns the error.
func (e *StructuredError) WithDetails(format string, args ...any) *StructuredError {
	e.ProviderDetails = fmt.Sprintf(format, args...)
	return e
}

// As extracts a *StructuredError from an error chain.
func As(err error) (*StructuredError, bool) {
	var se *StructuredError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsTransient reports whether err carries a transient classification.
// Unclassified errors are never transient.
func IsTransient(err error) bool {
	if se, ok := As(err); ok {
		return se.Transient
	}
	return false
}

// TypeOf returns the taxonomy type of err, or TypeUnknown when err does
// not carry a StructuredError.
func TypeOf(err error) Type {
	if se, ok := As(err); ok {
		return se.Type
	}
	return TypeUnknown
}

// FromContext classifies cancellation and dead-connection signals shared
// by all backends. Returns nil when err is not one of them.
//
// Caller cancellation is deliberately non-transient: a canceled attempt
// must not be retried.
func FromContext(err error) *StructuredError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return New(TypeTimeout, CodeDeadline, KeyTimeout).
			WithDetails("context deadline exceeded")
	case errors.Is(err, context.Canceled):
		return NewNonTransient(TypeTimeout, CodeCanceled, KeyCanceled).
			WithDetails("context canceled")
	case errors.Is(err, driver.ErrBadConn):
		return New(TypeConnectionFailure, CodeBadConn, KeyConnectionFailure).
			WithDetails("driver reported bad connection")
	}
	return nil
}

// Shared codes used by FromContext and the generic fallback.
const (
	CodeDeadline = "CTX_DEADLINE"
	CodeCanceled = "CTX_CANCELED"
	CodeBadConn  = "DRV_BADCONN"
	CodeUnknown  = "UNKNOWN"
)

// Unknown builds the generic fallback classification, preserving the raw
// error's type name and text as diagnostics.
func Unknown(err error) *StructuredError {
	return New(TypeUnknown, CodeUnknown, KeyUnknown).
		WithDetails("%T: %v", err, err)
}
