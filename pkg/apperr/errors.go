package apperr

import (
	"errors"
	"fmt"
)

// AppError is the error type crossing the app/server boundary. Message is
// safe to show to clients; Cause is for logs only.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func InvalidArgf(format string, args ...any) error {
	return New(CodeInvalidArgument, fmt.Sprintf(format, args...))
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func AlreadyExists(msg string) error {
	return New(CodeAlreadyExists, msg)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthenticated, msg)
}

func Forbidden(msg string) error {
	return New(CodePermissionDenied, msg)
}

func TooManyRequests(msg string) error {
	return New(CodeResourceExhausted, msg)
}

func Internal(msg string, cause error) error {
	return Wrap(CodeInternal, msg, cause)
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Public returns the status and message that may be shown to clients.
// Anything that is not an AppError collapses to a generic 500.
func Public(err error) (int, string) {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code == CodeInternal || appErr.Code == CodeUnknown {
		msg := "Internal server error"
		if appErr != nil && appErr.Message != "" {
			msg = appErr.Message
		}
		return CodeInternal.HTTPStatus(), msg
	}
	return appErr.Code.HTTPStatus(), appErr.Message
}
