// Package apperrors defines the typed error taxonomy shared by the upload
// pipeline and the HTTP layer. Every failure surfaced to a caller carries a
// stable machine-readable kind and a human-readable message.
package apperrors

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindAuthorization   Kind = "authorization_error"
	KindValidation      Kind = "validation_error"
	KindUnsupportedType Kind = "unsupported_type_error"
	KindNotFound        Kind = "not_found_error"
	KindStorage         Kind = "storage_error"
	KindPersistence     Kind = "persistence_error"
	KindCycle           Kind = "cycle_error"
	KindConflict        Kind = "conflict_error"
	KindInternal        Kind = "internal_error"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to the response status documented in the
// API contract.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindValidation, KindUnsupportedType, KindCycle:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
