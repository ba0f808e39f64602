// Package apperr defines the error taxonomy shared by the services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindInvalidState     Kind = "invalid_state"
	KindOutOfStock       Kind = "out_of_stock"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindConflict         Kind = "conflict"
	KindExternalService  Kind = "external_service"
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindInternal         Kind = "internal"
)

// Error is a classified application error with a user-facing message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperr.OutOfStock("")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: cause}
}

func Validation(msg string) *Error {
	return newErr(KindValidation, "VALIDATION_ERROR", msg, nil)
}

func NotFound(msg string) *Error {
	return newErr(KindNotFound, "NOT_FOUND", msg, nil)
}

func InvalidState(msg string) *Error {
	return newErr(KindInvalidState, "INVALID_STATE", msg, nil)
}

func OutOfStock(msg string) *Error {
	return newErr(KindOutOfStock, "OUT_OF_STOCK", msg, nil)
}

func CapacityExceeded(msg string) *Error {
	return newErr(KindCapacityExceeded, "CAPACITY_EXCEEDED", msg, nil)
}

func Conflict(msg string) *Error {
	return newErr(KindConflict, "CONFLICT", msg, nil)
}

// ExternalService wraps a provider or database failure. Callers may retry.
func ExternalService(msg string, cause error) *Error {
	return newErr(KindExternalService, "EXTERNAL_SERVICE_ERROR", msg, cause)
}

func Unauthorized(msg string) *Error {
	return newErr(KindUnauthorized, "UNAUTHORIZED", msg, nil)
}

func Forbidden(msg string) *Error {
	return newErr(KindForbidden, "FORBIDDEN", msg, nil)
}

// KindOf reports the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
