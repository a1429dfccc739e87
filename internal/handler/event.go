package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/oveida/ticketing/internal/model"
	"github.com/oveida/ticketing/internal/repository"
)

// EventStore lists events for browsing and resolves single events.
type EventStore interface {
	List(ctx context.Context) ([]model.Event, error)
	GetByID(ctx context.Context, id int64) (*model.Event, error)
}

// SeatSource reads the authoritative seat rows of an event.
type SeatSource interface {
	ListByEvent(ctx context.Context, eventID int64) ([]model.Seat, error)
}

// HoldSource reports which seats currently carry a live hold key.
type HoldSource interface {
	HeldSeats(ctx context.Context, eventID int64) (map[int64]bool, error)
}

// EventHandler serves event browsing and the full seat-map snapshot.
// The snapshot is the resynchronization path for stream clients: seat
// status comes from the database (AVAILABLE/SOLD) with HELD overlaid
// from the live hold keys, so a client that missed pushes can always
// recover complete state.
type EventHandler struct {
	Events  EventStore
	SeatSrc SeatSource
	Holds   HoldSource
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events EventStore, seats SeatSource, holds HoldSource) *EventHandler {
	if events == nil || seats == nil || holds == nil {
		panic("nil dependency passed to NewEventHandler")
	}
	return &EventHandler{Events: events, SeatSrc: seats, Holds: holds}
}

// List handles GET /events.
func (h *EventHandler) List(c echo.Context) error {
	events, err := h.Events.List(c.Request().Context())
	if err != nil {
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to list events")
	}
	out := make([]echo.Map, 0, len(events))
	for _, ev := range events {
		out = append(out, echo.Map{
			"id":       ev.ID,
			"title":    ev.Title,
			"dateTime": ev.DateTime.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// Seats handles GET /events/:eventId/seats.
func (h *EventHandler) Seats(c echo.Context) error {
	eventID, err := strconv.ParseInt(c.Param("eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		return apiError(c, http.StatusBadRequest, CodeValidationFailed, "invalid eventId")
	}
	ctx := c.Request().Context()

	// The event itself decides the 404; an existing event with no seat
	// rows is a valid, empty map.
	if _, err := h.Events.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return apiError(c, http.StatusNotFound, CodeEventNotFound, "event not found")
		}
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to load event")
	}
	seats, err := h.SeatSrc.ListByEvent(ctx, eventID)
	if err != nil {
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to load seats")
	}
	held, err := h.Holds.HeldSeats(ctx, eventID)
	if err != nil {
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to load holds")
	}

	rows, cols := 0, 0
	out := make([]echo.Map, 0, len(seats))
	for _, s := range seats {
		if s.RowNo > rows {
			rows = s.RowNo
		}
		if s.ColNo > cols {
			cols = s.ColNo
		}
		status := s.Status
		if status != model.SeatSold && held[s.ID] {
			status = model.SeatHeld
		}
		out = append(out, echo.Map{
			"id":     s.ID,
			"row":    s.RowNo,
			"col":    s.ColNo,
			"price":  s.Price,
			"status": status,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"rows":  rows,
		"cols":  cols,
		"seats": out,
	})
}
