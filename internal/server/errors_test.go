package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/calculator"
	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/hiap"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "id", Message: "must be a UUID"}
	assert.Equal(t, "validation error: id - must be a UUID", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "ErrValidation",
			err:      &ErrValidation{Field: "city_ids", Message: "required"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "InvalidRequestError",
			err:      &hiap.InvalidRequestError{Message: "no cities"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "job NotFoundError",
			err:      &hiap.NotFoundError{JobID: uuid.New()},
			expected: http.StatusNotFound,
		},
		{
			name:     "InventoryNotFoundError",
			err:      &calculator.InventoryNotFoundError{InventoryID: uuid.New()},
			expected: http.StatusNotFound,
		},
		{
			name:     "ConflictError",
			err:      &hiap.ConflictError{CityID: uuid.New(), JobID: uuid.New()},
			expected: http.StatusConflict,
		},
		{
			name:     "InvalidTransitionError",
			err:      &hiap.InvalidTransitionError{JobID: uuid.New(), From: "succeeded", To: "failed"},
			expected: http.StatusConflict,
		},
		{
			name:     "ErrQueueFull",
			err:      hiap.ErrQueueFull,
			expected: http.StatusServiceUnavailable,
		},
		{
			name:     "wrapped conflict",
			err:      fmt.Errorf("submit: %w", &hiap.ConflictError{}),
			expected: http.StatusConflict,
		},
		{
			name:     "unknown error",
			err:      errors.New("boom"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "invalid_request", errorCode(http.StatusBadRequest))
	assert.Equal(t, "conflict", errorCode(http.StatusConflict))
	assert.Equal(t, "internal_error", errorCode(http.StatusTeapot))
}
