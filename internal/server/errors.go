// Package server provides the HTTP REST API for inventory totals and HIAP jobs.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/calculator"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/hiap"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation   *ErrValidation
		invalid      *hiap.InvalidRequestError
		jobNotFound  *hiap.NotFoundError
		invNotFound  *calculator.InventoryNotFoundError
		conflict     *hiap.ConflictError
		invalidTrans *hiap.InvalidTransitionError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &jobNotFound), errors.As(err, &invNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.As(err, &invalidTrans):
		return http.StatusConflict
	case errors.Is(err, hiap.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the machine-readable error field of API error bodies.
func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}
