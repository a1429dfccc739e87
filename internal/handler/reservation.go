package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/oveida/ticketing/internal/ledger"
	"github.com/oveida/ticketing/internal/middleware"
)

// Hold durations accepted on create; out-of-range values are clamped,
// not rejected, so sloppy clients still get a usable hold.
const (
	minHoldSeconds     = 5
	maxHoldSeconds     = 120
	defaultExtendAdded = 30
)

// HoldLedger is the slice of the hold ledger the reservation handler
// drives.  Implemented by *ledger.Ledger; tests substitute a mock.
type HoldLedger interface {
	Hold(ctx context.Context, eventID, seatID int64, ttlSeconds int, traceID string) (ledger.HoldResult, error)
	Extend(ctx context.Context, eventID, seatID int64, addSeconds int, traceID string) (time.Time, error)
	Release(ctx context.Context, eventID, seatID int64, traceID string) error
}

// ReservationHandler exposes the hold lifecycle over HTTP: create,
// extend, release.  Confirmation is not reachable from here; it only
// happens through the payment saga and the event consumer.
type ReservationHandler struct {
	Ledger HoldLedger
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(l HoldLedger) *ReservationHandler {
	if l == nil {
		panic("nil ledger passed to NewReservationHandler")
	}
	return &ReservationHandler{Ledger: l}
}

// Create handles POST /reservations.  The body carries eventId, seatId
// and holdSeconds; holdSeconds is clamped to [5,120].  A taken seat
// answers 409 RESERVATION_CONFLICT, a sold seat 409 ALREADY_SOLD.
func (h *ReservationHandler) Create(c echo.Context) error {
	var body struct {
		EventID     int64 `json:"eventId"`
		SeatID      int64 `json:"seatId"`
		HoldSeconds int   `json:"holdSeconds"`
	}
	if err := c.Bind(&body); err != nil {
		return apiError(c, http.StatusBadRequest, CodeValidationFailed, "invalid request body")
	}
	if body.EventID <= 0 || body.SeatID <= 0 {
		return apiError(c, http.StatusUnprocessableEntity, CodeValidationFailed, "eventId and seatId are required")
	}
	seconds := body.HoldSeconds
	if seconds < minHoldSeconds {
		seconds = minHoldSeconds
	}
	if seconds > maxHoldSeconds {
		seconds = maxHoldSeconds
	}

	traceID := middleware.TraceID(c)
	result, err := h.Ledger.Hold(c.Request().Context(), body.EventID, body.SeatID, seconds, traceID)
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadySold) {
			return apiError(c, http.StatusConflict, CodeAlreadySold, "seat already sold")
		}
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to place hold")
	}
	if !result.Success {
		return apiError(c, http.StatusConflict, CodeReservationConflict, "seat already held")
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"eventId":     body.EventID,
		"seatId":      body.SeatID,
		"holdSeconds": seconds,
		"expiresAt":   result.ExpiresAt.UTC().Format(time.RFC3339),
		"traceId":     traceID,
	})
}

// Extend handles POST /reservations/:eventId/:seatId/extend.  The body
// may carry {seconds}; it defaults to 30.  A missing hold answers 410
// HOLD_EXPIRED and never (re)creates one.
func (h *ReservationHandler) Extend(c echo.Context) error {
	eventID, seatID, err := seatPath(c)
	if err != nil {
		return apiError(c, http.StatusBadRequest, CodeValidationFailed, "invalid eventId or seatId")
	}
	seconds := defaultExtendAdded
	var body struct {
		Seconds *int `json:"seconds"`
	}
	if err := c.Bind(&body); err == nil && body.Seconds != nil && *body.Seconds > 0 {
		seconds = *body.Seconds
	}

	expiresAt, err := h.Ledger.Extend(c.Request().Context(), eventID, seatID, seconds, middleware.TraceID(c))
	if err != nil {
		if errors.Is(err, ledger.ErrHoldExpired) {
			return apiError(c, http.StatusGone, CodeHoldExpired, "hold already expired or not found")
		}
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to extend hold")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}

// Release handles DELETE /reservations/:eventId/:seatId.  Success is a
// bare 204; a missing hold answers 410 HOLD_EXPIRED.
func (h *ReservationHandler) Release(c echo.Context) error {
	eventID, seatID, err := seatPath(c)
	if err != nil {
		return apiError(c, http.StatusBadRequest, CodeValidationFailed, "invalid eventId or seatId")
	}
	if err := h.Ledger.Release(c.Request().Context(), eventID, seatID, middleware.TraceID(c)); err != nil {
		if errors.Is(err, ledger.ErrHoldExpired) {
			return apiError(c, http.StatusGone, CodeHoldExpired, "hold already expired or not found")
		}
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to release hold")
	}
	return c.NoContent(http.StatusNoContent)
}

// seatPath parses the :eventId/:seatId path parameters.
func seatPath(c echo.Context) (int64, int64, error) {
	eventID, err := strconv.ParseInt(c.Param("eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		return 0, 0, errors.New("invalid eventId")
	}
	seatID, err := strconv.ParseInt(c.Param("seatId"), 10, 64)
	if err != nil || seatID <= 0 {
		return 0, 0, errors.New("invalid seatId")
	}
	return eventID, seatID, nil
}
