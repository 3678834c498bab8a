// Package apperr defines the error kinds every operation reports to callers.
package apperr

import (
	"net/http"

	"github.com/pkg/errors"
)

// Kind 是调用方可以稳定区分的错误类别
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindValidation
	KindInvalidState
	KindTooManyRequests
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation_error"
	case KindInvalidState:
		return "invalid_state"
	case KindTooManyRequests:
		return "too_many_requests"
	case KindStore:
		return "store_error"
	default:
		return "unknown"
	}
}

// Error carries a kind plus a caller-safe message. Err holds the cause, if any.
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

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) error {
	return errors.WithStack(&Error{Kind: kind, Message: msg})
}

func Unauthenticated(msg string) error { return newError(KindUnauthenticated, msg) }
func Forbidden(msg string) error       { return newError(KindForbidden, msg) }
func NotFound(msg string) error        { return newError(KindNotFound, msg) }
func Validation(msg string) error      { return newError(KindValidation, msg) }
func InvalidState(msg string) error    { return newError(KindInvalidState, msg) }
func TooManyRequests(msg string) error { return newError(KindTooManyRequests, msg) }

// Store wraps a downstream store failure. The cause is kept for logging only.
func Store(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: KindStore, Message: op, Err: err})
}

// KindOf 返回错误类别，非 apperr 错误一律视为 StoreError
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage 返回可以展示给调用方的信息，StoreError 不暴露内部细节
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindStore {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus 错误类别对应的 HTTP 状态码
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidState:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
