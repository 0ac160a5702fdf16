package service

import (
	"errors"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindForbidden  ErrorKind = "forbidden"
	KindInternal   ErrorKind = "internal"
)

// Error is the typed failure surface of the service layer. The HTTP
// layer maps Kind to a status code and serializes the rest verbatim.
type Error struct {
	Kind         ErrorKind
	Message      string
	Field        string
	RoleRequired domain.Role
}

func (e *Error) Error() string {
	return e.Message
}

func Invalid(field, message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Field: field}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Forbidden(role domain.Role, message string) *Error {
	return &Error{Kind: KindForbidden, Message: message, RoleRequired: role}
}

func Internal(message string) *Error {
	return &Error{Kind: KindInternal, Message: message}
}

// AsError unwraps err into a service Error when possible.
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// fromStore translates storage sentinels into service errors so handlers
// never see raw store errors.
func fromStore(err error, notFoundMsg, conflictMsg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return NotFound(notFoundMsg)
	case errors.Is(err, store.ErrDuplicate):
		return Conflict(conflictMsg)
	case errors.Is(err, store.ErrInvalid):
		return Invalid("", "invalid arguments")
	default:
		return err
	}
}
