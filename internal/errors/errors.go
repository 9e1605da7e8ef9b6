package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeDeleted       ErrorType = "DELETED"
	ErrorTypeDecode        ErrorType = "DECODE"
	ErrorTypeIO            ErrorType = "IO"
	ErrorTypeConcurrency   ErrorType = "CONCURRENCY"
	ErrorTypeConfiguration ErrorType = "CONFIGURATION"
	ErrorTypeValidation    ErrorType = "VALIDATION"
	ErrorTypeInternal      ErrorType = "INTERNAL"
)

// Sentinels for errors.Is. They match any *Error of the same type.
var (
	ErrNotFound      = &Error{Type: ErrorTypeNotFound}
	ErrDeleted       = &Error{Type: ErrorTypeDeleted}
	ErrDecode        = &Error{Type: ErrorTypeDecode}
	ErrIO            = &Error{Type: ErrorTypeIO}
	ErrConcurrency   = &Error{Type: ErrorTypeConcurrency}
	ErrConfiguration = &Error{Type: ErrorTypeConfiguration}
	ErrValidation    = &Error{Type: ErrorTypeValidation}
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func newError(t ErrorType, code int, cause error, format string, args ...any) *Error {
	return &Error{
		Type:    t,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
		Err:     cause,
	}
}

func NotFound(format string, args ...any) *Error {
	return newError(ErrorTypeNotFound, http.StatusNotFound, nil, format, args...)
}

func Deleted(format string, args ...any) *Error {
	return newError(ErrorTypeDeleted, http.StatusGone, nil, format, args...)
}

func Decode(cause error, format string, args ...any) *Error {
	return newError(ErrorTypeDecode, http.StatusUnprocessableEntity, cause, format, args...)
}

// IO marks a storage failure. The cause keeps its stack from WithStack/Wrap.
func IO(cause error, format string, args ...any) *Error {
	return newError(ErrorTypeIO, http.StatusInternalServerError, cause, format, args...)
}

func Concurrency(cause error, format string, args ...any) *Error {
	return newError(ErrorTypeConcurrency, http.StatusConflict, cause, format, args...)
}

func Configuration(cause error, format string, args ...any) *Error {
	return newError(ErrorTypeConfiguration, http.StatusInternalServerError, cause, format, args...)
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

// TypeOf returns the type of the first *Error in err's chain, or
// ErrorTypeInternal when there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// StatusCode maps err to an HTTP status.
func StatusCode(err error) int {
	var e *Error
	if stderrors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}

// Wrap annotates err with a message and a stack trace.
var Wrap = errors.Wrap

// Wrapf annotates err with a formatted message and a stack trace.
var Wrapf = errors.Wrapf

// WithStack annotates err with a stack trace at the point WithStack was called.
var WithStack = errors.WithStack

// New returns an error with a stack trace.
var New = errors.New

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
