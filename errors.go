package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
)

// Sentinel errors for caller mistakes.
var (
	ErrRouteConflict    = errors.New("route already registered")
	ErrRouterStarted    = errors.New("router already serving; routes are frozen")
	ErrFutureAlreadySet = errors.New("future already set by this handler")
	ErrNilFuture        = errors.New("future supplier returned nil")
)

// StatusCoder is implemented by errors or responses that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// ProblemDetail is an RFC 9457 problem details response.
//
//nolint:errname // RFC 9457 standard name
type ProblemDetail struct {
	Type     string            `json:"type,omitempty"`
	Title    string            `json:"title,omitempty"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

// Error returns the detail message (or title if detail is empty).
func (p *ProblemDetail) Error() string {
	if p.Detail != "" {
		return p.Detail
	}
	return p.Title
}

// StatusCode returns the HTTP status code.
func (p *ProblemDetail) StatusCode() int { return p.Status }

// HTTPError is an error with an HTTP status code. Returning one from a
// handler renders the status and message unless an exception handler is
// registered for *HTTPError.
type HTTPError struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Error returns the error message.
func (e *HTTPError) Error() string { return e.Message }

// StatusCode returns the HTTP status code.
func (e *HTTPError) StatusCode() int { return e.Status }

// Error returns an error with the given HTTP status code and message.
func Error(status int, message string) error {
	return &HTTPError{Status: status, Message: message}
}

// Errorf returns a formatted error with the given HTTP status code.
func Errorf(status int, format string, args ...any) error {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// BadRequest returns a 400 error.
func BadRequest(message string) error { return Error(http.StatusBadRequest, message) }

// Unauthorized returns a 401 error.
func Unauthorized(message string) error { return Error(http.StatusUnauthorized, message) }

// Forbidden returns a 403 error.
func Forbidden(message string) error { return Error(http.StatusForbidden, message) }

// NotFound returns a 404 error.
func NotFound(message string) error { return Error(http.StatusNotFound, message) }

// MethodNotAllowed returns a 405 error listing the methods that do match.
func MethodNotAllowed(available []string) error {
	return &HTTPError{
		Status:  http.StatusMethodNotAllowed,
		Message: "Method not allowed",
		Details: map[string]string{"availableMethods": strings.Join(available, ", ")},
	}
}

// ContentTooLarge returns a 413 error.
func ContentTooLarge(message string) error { return Error(http.StatusRequestEntityTooLarge, message) }

// TooManyRequests returns a 429 error.
func TooManyRequests(message string) error { return Error(http.StatusTooManyRequests, message) }

// InternalServerError returns a 500 error.
func InternalServerError(message string) error {
	return Error(http.StatusInternalServerError, message)
}

// ErrorStatus extracts the HTTP status code from an error. Returns
// http.StatusInternalServerError if the error does not implement StatusCoder.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// RouteConflictError reports a duplicate registration.
type RouteConflictError struct {
	Stage   Stage
	Method  string
	Pattern string
}

func (e *RouteConflictError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Stage, e.Method, e.Pattern, ErrRouteConflict)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Pattern, ErrRouteConflict)
}

// Unwrap lets errors.Is match ErrRouteConflict.
func (e *RouteConflictError) Unwrap() error { return ErrRouteConflict }

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// FutureError wraps the failure of a future registered with Context.Future.
// The exception mapper unwraps it before looking up handlers.
type FutureError struct {
	Err error
}

func (e *FutureError) Error() string { return "future failed: " + e.Err.Error() }

// Unwrap returns the underlying failure.
func (e *FutureError) Unwrap() error { return e.Err }

// isClientAbort reports whether err means the client went away. These are
// expected: the response is abandoned instead of rendered as a 500.
// context.Canceled only counts when the request context itself is done.
func isClientAbort(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, http.ErrAbortHandler) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return ctx.Err() != nil
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "client disconnected")
}
