// Package apierror defines the error taxonomy shared by every service and the
// JSON shape the HTTP layer renders it as.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is the typed error returned by services. Message is safe to show to
// clients; Err carries the underlying cause and is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the HTTP status for the error kind.
func (e *Error) Code() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body is the response envelope for every failed request.
type Body struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Body returns the client-facing representation. Internal errors always use
// the generic message.
func (e *Error) Body() Body {
	if e.Kind == KindInternal {
		return Body{Message: MsgInternal}
	}
	return Body{Message: e.Message, Errors: e.Fields}
}

const (
	MsgInternal           = "Internal server error"
	MsgUnauthenticated    = "Unauthenticated"
	MsgInvalidCredentials = "Invalid credentials"
	MsgUnauthorized       = "Unauthorized"
	MsgSlotTaken          = "Doctor not available at this time"
	MsgValidation         = "The given data was invalid"
)

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// InvalidFields reports per-field validation failures.
func InvalidFields(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: MsgValidation, Fields: fields}
}

func Unauthenticated(msg string) *Error {
	if msg == "" {
		msg = MsgUnauthenticated
	}
	return &Error{Kind: KindAuthentication, Message: msg}
}

func Forbidden() *Error {
	return &Error{Kind: KindAuthorization, Message: MsgUnauthorized}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Wrap passes *Error values through and turns anything else into Internal.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return Internal(err)
}
