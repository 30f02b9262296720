package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/easelapp/easel-api/internal/document"
	"github.com/easelapp/easel-api/internal/service/auth"
	"github.com/easelapp/easel-api/internal/session"
)

// Handler-level lookup errors.
var (
	// ErrJobNotFound indicates the referenced job is not in the queue or history.
	ErrJobNotFound = errors.New("job not found")

	// ErrControlLayerNotFound indicates the referenced control layer index is out of range.
	ErrControlLayerNotFound = errors.New("control layer not found")
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrControlLayerNotFound),
		errors.Is(err, document.ErrLayerNotFound):
		return http.StatusNotFound

	// Precondition errors
	case errors.Is(err, session.ErrUnsupportedColorMode):
		return http.StatusUnprocessableEntity

	case errors.Is(err, session.ErrNothingToApply):
		return http.StatusConflict

	// Backend unavailable
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"

	case errors.Is(err, ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, ErrControlLayerNotFound):
		return "Control layer not found"

	case errors.Is(err, document.ErrLayerNotFound):
		return "Layer not found"

	case errors.Is(err, session.ErrUnsupportedColorMode):
		return "Document color mode is not supported"

	case errors.Is(err, session.ErrNothingToApply):
		return "No generated result is ready to apply"

	case errors.Is(err, session.ErrNotConnected):
		return "Diffusion backend is not connected"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	if strings.Contains(errMsg, "Field validation") {
		// Example format: "Key: 'GenerateRequest.Strength' Error:Field
		// validation for 'Strength' failed on the 'lte' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte", "gt":
		return "too small"
	case "max", "lte", "lt":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
