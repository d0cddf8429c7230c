// Package apperr holds the error kinds shared by every lab domain package.
// Domain code wraps one of the sentinel kinds; handlers translate the kind
// into an HTTP status without inspecting message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrCapacityExceeded  = errors.New("sequence capacity exceeded")
	ErrContainerTooSmall = errors.New("specimen container too small")
	ErrValidation        = errors.New("validation error")
	ErrDuplicateCustomer = errors.New("customer already registered")
	ErrConflict          = errors.New("conflict")
)

// Validation returns an error of kind ErrValidation with the given message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// NotFound returns an error of kind ErrNotFound naming the missing entity.
func NotFound(entity string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}

// HTTPStatus maps an error kind to the status code a handler should send.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDuplicateCustomer), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrCapacityExceeded), errors.Is(err, ErrContainerTooSmall):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts a domain error into an echo error. Internal errors keep
// their detail out of the response body.
func HTTPError(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error())
}
