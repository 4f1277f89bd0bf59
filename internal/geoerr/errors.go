// Package geoerr defines the error taxonomy shared by every geostore package.
//
// Errors carry a Code identifying the condition and derive a Kind that
// classifies it as bad input, not found, or an upstream failure. Outer layers
// (the CLI today) map kinds to exit codes; nothing in the core deals in
// transport status codes except to report what a remote service returned.
package geoerr

import (
	"errors"
	"fmt"
)

// Code identifies an error condition.
type Code string

const (
	// CodeUnsupportedGeometryType indicates a geometry type tag that is not one
	// of the GeoJSON geometry types (or cannot be repaired).
	CodeUnsupportedGeometryType Code = "UNSUPPORTED_GEOMETRY_TYPE"

	// CodeGeometryNotFound indicates a repair or boundary lookup returned no
	// usable geometry.
	CodeGeometryNotFound Code = "GEOMETRY_NOT_FOUND"

	// CodeMissingInput indicates a save request without a geometry payload.
	CodeMissingInput Code = "MISSING_INPUT"

	// CodeRemoteServiceFailure indicates a non-404 failure from a remote call.
	CodeRemoteServiceFailure Code = "REMOTE_SERVICE_FAILURE"

	// CodeRecordNotFound indicates no stored record exists for a hash.
	CodeRecordNotFound Code = "RECORD_NOT_FOUND"

	// CodeInvalidArgument indicates a malformed request parameter.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// Kind classifies an error for outer layers.
type Kind string

const (
	KindBadInput Kind = "bad_input"
	KindNotFound Kind = "not_found"
	KindUpstream Kind = "upstream_failure"
	KindInternal Kind = "internal"
)

// Error is the error type returned by geostore operations.
type Error struct {
	// Code identifies the condition.
	Code Code

	// Message is a human-readable description.
	Message string

	// Status is the status reported by a remote service, zero otherwise.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Kind returns the classification of the error.
func (e *Error) Kind() Kind {
	switch e.Code {
	case CodeUnsupportedGeometryType, CodeMissingInput, CodeInvalidArgument:
		return KindBadInput
	case CodeGeometryNotFound, CodeRecordNotFound:
		return KindNotFound
	case CodeRemoteServiceFailure:
		return KindUpstream
	default:
		return KindInternal
	}
}

// UnsupportedGeometryType creates an error for an unrecognized type tag.
func UnsupportedGeometryType(typ string) *Error {
	return &Error{
		Code:    CodeUnsupportedGeometryType,
		Message: fmt.Sprintf("unknown geometry type: %q", typ),
	}
}

// GeometryNotFound creates an error for an empty repair or lookup result.
func GeometryNotFound(message string) *Error {
	return &Error{Code: CodeGeometryNotFound, Message: message}
}

// MissingInput creates an error for a request without a usable payload.
func MissingInput(message string) *Error {
	return &Error{Code: CodeMissingInput, Message: message}
}

// InvalidArgument creates an error for a malformed parameter.
func InvalidArgument(message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message}
}

// RecordNotFound creates an error for a hash with no stored record.
func RecordNotFound(hash string) *Error {
	return &Error{
		Code:    CodeRecordNotFound,
		Message: fmt.Sprintf("geostore %s not found", hash),
	}
}

// RemoteServiceFailure creates an error carrying a remote status and message.
// err may be nil when the remote answered with an error status.
func RemoteServiceFailure(status int, message string, err error) *Error {
	return &Error{
		Code:    CodeRemoteServiceFailure,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// CodeOf returns the Code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// KindOf returns the Kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind()
	}
	return KindInternal
}

// Is reports whether err's chain contains an *Error with the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsBadInput reports whether err is caused by the request itself.
func IsBadInput(err error) bool {
	return KindOf(err) == KindBadInput
}

// IsUpstream reports whether err originated in a remote service.
func IsUpstream(err error) bool {
	return KindOf(err) == KindUpstream
}
