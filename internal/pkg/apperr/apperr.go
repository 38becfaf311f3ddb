package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure for propagation and HTTP mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTimeout    Kind = "timeout"
	KindUpstream   Kind = "upstream"
	KindStorage    Kind = "storage"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is a stage-tagged error. Msg is the user-facing message; Err carries
// the underlying cause for logs.
type Error struct {
	Kind  Kind
	Stage string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Timeout(stage string) *Error {
	return &Error{Kind: KindTimeout, Stage: stage, Msg: "l'operazione ha richiesto troppo tempo"}
}

func Upstream(stage, msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Stage: stage, Msg: msg, Err: err}
}

func Storage(stage, msg string, err error) *Error {
	return &Error{Kind: KindStorage, Stage: stage, Msg: msg, Err: err}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Msg: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Msg: msg, Err: ErrNotFound}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Msg: msg, Err: ErrUnauthorized}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// UserMessage returns the message safe to show to the user.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	if err != nil {
		return err.Error()
	}
	return "errore sconosciuto"
}

// WithPrefix prepends a stage prefix ("generazione fallita", "salvataggio
// fallito") to the user-facing message, preserving kind and cause.
func WithPrefix(prefix string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Stage: e.Stage, Msg: prefix + ": " + e.Msg, Err: e.Err}
	}
	msg := "errore inatteso"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindInternal, Msg: prefix + ": " + msg, Err: err}
}

// HTTPStatus maps an error kind to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUpstream:
		return http.StatusBadGateway
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
