// Package apperr carries the error taxonomy shared by the engine and its HTTP
// edge. Every failure the engine reports on purpose is an *Error with a Kind;
// context deadlines and cancellations get their own kinds, and anything else
// is treated as internal.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindConflict            Kind = "conflict"
	KindInvalidState        Kind = "invalid_state"
	KindAlreadyClosed       Kind = "already_closed"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindTimeout             Kind = "timeout"
	KindCanceled            Kind = "canceled"
	KindInternal            Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err while keeping it reachable through errors.Is/As.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error { return New(KindValidation, msg) }

func NotFound(msg string) *Error { return New(KindNotFound, msg) }

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusClientClosedRequest reports a request whose caller went away first.
const StatusClientClosedRequest = 499

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindAlreadyClosed, KindInsufficientBalance:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides internal error text from clients.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindInternal:
		return "internal server error"
	case KindTimeout:
		return "request timed out"
	case KindCanceled:
		return "request canceled"
	}
	return err.Error()
}
