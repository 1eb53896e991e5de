// Package apperr defines the error kinds shared by the order lifecycle, the
// authorization layer and the HTTP surface.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindAccessDenied       Kind = "ACCESS_DENIED"
	KindInvalidToken       Kind = "INVALID_TOKEN"
	KindInsufficientStock  Kind = "INSUFFICIENT_STOCK"
	KindIllegalTransition  Kind = "ILLEGAL_TRANSITION"
	KindTerminalState      Kind = "TERMINAL_STATE_VIOLATION"
	KindValidation         Kind = "VALIDATION_ERROR"
	KindPaymentProvider    Kind = "PAYMENT_PROVIDER_ERROR"
	KindConflict           Kind = "CONFLICT"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindInternal           Kind = "INTERNAL"
)

// Error is an application error with a kind, a caller-facing message and an
// optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can compare against the
// sentinels below regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAccessDenied       = &Error{Kind: KindAccessDenied, Message: "access denied"}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken, Message: "invalid or missing token"}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrIllegalTransition  = &Error{Kind: KindIllegalTransition, Message: "illegal status transition"}
	ErrTerminalState      = &Error{Kind: KindTerminalState, Message: "order is in a terminal state"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrPaymentProvider    = &Error{Kind: KindPaymentProvider, Message: "payment provider failure"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "conflict"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
)

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func AccessDenied(format string, args ...interface{}) *Error {
	return newf(KindAccessDenied, format, args...)
}

func InsufficientStock(format string, args ...interface{}) *Error {
	return newf(KindInsufficientStock, format, args...)
}

func IllegalTransition(format string, args ...interface{}) *Error {
	return newf(KindIllegalTransition, format, args...)
}

func TerminalState(format string, args ...interface{}) *Error {
	return newf(KindTerminalState, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

// PaymentProvider wraps an upstream payment failure without interpreting it.
func PaymentProvider(err error) *Error {
	return &Error{Kind: KindPaymentProvider, Message: "payment provider failure", Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message. Causes are never exposed.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps a kind to the status code used by the API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindInvalidToken, KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindInsufficientStock, KindIllegalTransition, KindTerminalState, KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindPaymentProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
