package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Core taxonomy. Every caller-visible failure maps to exactly one of these;
// transports translate them into wire status codes via MapToHTTPStatus.
var (
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrNotFound        = fmt.Errorf("not found")
	ErrForbidden       = fmt.Errorf("forbidden")
	ErrNotRegistered   = fmt.Errorf("connection not registered")
	ErrConflict        = fmt.Errorf("duplicate registration")

	// ErrDeliveryFailure is an observability signal only. It is swallowed at
	// the registry boundary: one dead socket never fails an otherwise
	// successful send.
	ErrDeliveryFailure = fmt.Errorf("delivery failure")
)

// Account sentinels used by the auth boundary.
var (
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)

var ErrWorkerPanic = fmt.Errorf("worker panic")

// MapToHTTPStatus translates a domain sentinel into an HTTP status code.
// Unknown errors are reported as 500 so internals never leak to clients.
func MapToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
