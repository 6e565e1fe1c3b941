package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIError represents a structured error response from the observability surface.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

const (
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

var (
	ErrInternalServer = &APIError{
		Status:  http.StatusInternalServerError,
		Code:    ErrCodeInternalError,
		Message: "internal server error",
	}

	ErrServiceUnavailable = &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    ErrCodeServiceUnavailable,
		Message: "service temporarily unavailable",
		Details: "one or more dependencies failed their health check",
	}
)

// RespondWithError sends a structured error response.
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
