package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/oveida/ticketing/internal/middleware"
)

// Error codes used across the API.  Every error body has the shape
// {code, message, traceId} so clients and operators can correlate a
// failure with server logs.
const (
	CodeReservationConflict = "RESERVATION_CONFLICT"
	CodeAlreadySold         = "ALREADY_SOLD"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeHoldExpired         = "HOLD_EXPIRED"
	CodeEventNotFound       = "EVENT_NOT_FOUND"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeInternalError       = "INTERNAL_ERROR"
)

// apiError writes the structured error body with the request's trace id.
func apiError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{
		"code":    code,
		"message": message,
		"traceId": middleware.TraceID(c),
	})
}
