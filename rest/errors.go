package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vitalvas/restmux/mediatype"
	"github.com/vitalvas/restmux/uritemplate"
)

var (
	// ErrNotFound is returned when no endpoint matches the path.
	ErrNotFound = errors.New("rest: no matching endpoint was found")

	// ErrMethodNotAllowed is matched by every *MethodNotAllowedError.
	ErrMethodNotAllowed = errors.New("rest: method is not allowed")

	// ErrUnsupportedMediaType is returned when no matching endpoint consumes
	// the request Content-Type.
	ErrUnsupportedMediaType = errors.New("rest: unsupported media type")

	// ErrBadRequest is returned when request headers cannot be parsed.
	ErrBadRequest = errors.New("rest: bad request")

	// ErrInvalidEndpoint is returned by NewRouter for a malformed endpoint.
	ErrInvalidEndpoint = errors.New("rest: invalid endpoint")
)

// MethodNotAllowedError reports the methods the path does accept.
type MethodNotAllowedError struct {
	Method  string
	Allowed []string
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("rest: method %s is not allowed, allowed: %s", e.Method, strings.Join(e.Allowed, ", "))
}

// Is makes errors.Is(err, ErrMethodNotAllowed) true.
func (e *MethodNotAllowedError) Is(target error) bool {
	return target == ErrMethodNotAllowed
}

// StatusError lets a handler choose the status of its error response.
type StatusError struct {
	Code int
	Err  error
}

// NewStatusError returns a StatusError with a message.
func NewStatusError(code int, format string, args ...any) *StatusError {
	return &StatusError{Code: code, Err: fmt.Errorf(format, args...)}
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Code)
	}

	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode maps an error to the HTTP status it should produce. Unknown
// errors map to 500, nil maps to 200.
func StatusCode(err error) int {
	var se *StatusError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &se):
		return se.Code
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, mediatype.ErrNotAcceptable):
		return http.StatusNotAcceptable
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrBadRequest), errors.Is(err, mediatype.ErrInvalidMediaType):
		return http.StatusBadRequest
	case errors.Is(err, uritemplate.ErrInvalidTemplate), errors.Is(err, ErrInvalidEndpoint):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
