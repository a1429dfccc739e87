package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/oveida/ticketing/internal/middleware"
)

// SeatResetter resets every seat of an event in the authoritative store.
type SeatResetter interface {
	ResetEvent(ctx context.Context, eventID int64) error
}

// CacheResetter drops the hold keys and sold markers of an event.
type CacheResetter interface {
	ResetEvent(ctx context.Context, eventID int64) error
}

// AdminHandler exposes the administrative bulk reset.  The cache side
// runs first so no stale hold or sold marker can outlive the row
// reset; afterwards the seats are all AVAILABLE on both sides.
type AdminHandler struct {
	Seats SeatResetter
	Cache CacheResetter
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(seats SeatResetter, cache CacheResetter) *AdminHandler {
	if seats == nil || cache == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Seats: seats, Cache: cache}
}

// ResetEvent handles POST /admin/events/:eventId/reset.
func (h *AdminHandler) ResetEvent(c echo.Context) error {
	eventID, err := strconv.ParseInt(c.Param("eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		return apiError(c, http.StatusBadRequest, CodeValidationFailed, "invalid eventId")
	}
	ctx := c.Request().Context()

	if err := h.Cache.ResetEvent(ctx, eventID); err != nil {
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to clear cache keys")
	}
	if err := h.Seats.ResetEvent(ctx, eventID); err != nil {
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to reset seats")
	}

	log.Printf("[ADMIN] event reset eventId=%d traceId=%s", eventID, middleware.TraceID(c))
	return c.NoContent(http.StatusNoContent)
}
