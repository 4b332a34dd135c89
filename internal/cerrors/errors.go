package cerrors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e == nil {
		return "OK"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithCause returns a shallow copy of e with Cause.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	c := *e
	c.Cause = err
	return &c
}

// WithMessage returns a shallow copy with an overridden message.
func (e *AppError) WithMessage(msg string, a ...any) *AppError {
	if e == nil {
		return nil
	}
	c := *e
	if len(a) > 0 {
		c.Message = fmt.Sprintf(msg, a...)
	} else {
		c.Message = msg
	}
	return &c
}

// HTTPStatusOf maps err to a response status. Wrapped app errors keep their
// status, anything else is a 500.
func HTTPStatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *AppError
	if errors.As(err, &e) && e != nil && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err is an *AppError with the given code.
func IsCode(err error, code string) bool {
	var e *AppError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// def is a small constructor for sentinels.
func def(code, msg string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: msg, HTTPStatus: httpStatus}
}

var (
	OK = def("OK", "OK", http.StatusOK)
)

var (
	ErrGenericBadRequest      = def("400000", "bad request error", http.StatusBadRequest)
	ErrGenericPermission      = def("400003", "invalid permission error", http.StatusForbidden)
	ErrGenericUnknownAPIPath  = def("400004", "unknown api path", http.StatusNotFound)
	ErrGenericInternalServer  = def("500000", "internal server error", http.StatusInternalServerError)
	ErrGenericRequestTimedOut = def("500004", "request timeout error", http.StatusGatewayTimeout)
)

var (
	ErrMissingAuthenticationHeader = def("410000", "missing authentication header", http.StatusUnauthorized)
	ErrInvalidAuthenticationHeader = def("410001", "invalid authentication header", http.StatusUnauthorized)
)

var (
	ErrAdminRequired = def("410003", "admin access required", http.StatusForbidden)
	ErrUnknownUser   = def("410004", "user not found", http.StatusNotFound)
)

var (
	ErrSubscriptionNotFound  = def("420004", "subscription not found", http.StatusNotFound)
	ErrSubscriptionExists    = def("420009", "subscription already exists", http.StatusConflict)
	ErrInvalidAlertKind      = def("420022", "invalid alert type", http.StatusUnprocessableEntity)
	ErrInvalidSubscription   = def("420023", "invalid subscription payload", http.StatusUnprocessableEntity)
	ErrAlertKindRequiresRole = def("420003", "this alert type requires user or admin role", http.StatusForbidden)
	ErrUserHasNoEmail        = def("420400", "user has no email configured", http.StatusBadRequest)
)

var (
	ErrSweepInProgress    = def("430009", "an alert sweep is already running", http.StatusConflict)
	ErrSweepFailed        = def("430500", "alert sweep failed", http.StatusInternalServerError)
	ErrNotificationFailed = def("430501", "failed to send notification", http.StatusBadGateway)
)
