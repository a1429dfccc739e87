package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/oveida/ticketing/internal/middleware"
	"github.com/oveida/ticketing/internal/stream"
)

// seatUpdateData is the SEAT_UPDATE event body pushed to subscribers.
type seatUpdateData struct {
	SeatID  int64  `json:"seatId"`
	Status  string `json:"status"`
	Version int    `json:"version"`
}

// StreamHandler serves the SSE seat-update stream and the internal
// webhook that feeds it.
type StreamHandler struct {
	Hub *stream.Hub
}

// NewStreamHandler constructs a StreamHandler over the given hub.
func NewStreamHandler(hub *stream.Hub) *StreamHandler {
	if hub == nil {
		panic("nil hub passed to NewStreamHandler")
	}
	return &StreamHandler{Hub: hub}
}

// StreamSeats handles GET /events/:eventId/seats/stream.  It emits a
// named INIT event on connect, replays history after the optional
// Last-Event-ID header, then pushes live SEAT_UPDATE events until the
// client disconnects or the subscriber is dropped.  Unexpected errors
// on this path close the stream cleanly; they are never written into
// the event protocol as an error payload.
func (h *StreamHandler) StreamSeats(c echo.Context) error {
	eventID, err := strconv.ParseInt(c.Param("eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		return apiError(c, http.StatusBadRequest, CodeValidationFailed, "invalid eventId")
	}

	lastSeen := int64(-1)
	if raw := c.Request().Header.Get("Last-Event-ID"); raw != "" {
		if n, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			lastSeen = n
		} else {
			log.Printf("[SSE] invalid Last-Event-ID=%q ignored", raw)
		}
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	sub := h.Hub.Subscribe(eventID, lastSeen)
	defer h.Hub.Unregister(sub)
	log.Printf("[SSE] connect eventId=%d lastEventId=%d", eventID, lastSeen)

	if _, err := fmt.Fprintf(resp, "id: init-%d\nevent: INIT\ndata: connected to event %d\n\n",
		time.Now().UnixMilli(), eventID); err != nil {
		return nil
	}
	resp.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[SSE] disconnect eventId=%d", eventID)
			return nil
		case <-sub.Done():
			log.Printf("[SSE] subscriber dropped eventId=%d", eventID)
			return nil
		case ev := <-sub.Events():
			data, err := json.Marshal(ev.Data)
			if err != nil {
				log.Printf("[SSE] marshal failed eventId=%d id=%d error=%v", eventID, ev.ID, err)
				continue
			}
			if _, err := fmt.Fprintf(resp, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data); err != nil {
				log.Printf("[SSE] send failed eventId=%d, closing: %v", eventID, err)
				return nil
			}
			resp.Flush()
		}
	}
}

// SeatUpdate handles POST /internal/seat-update, the fire-and-forget
// webhook from the ledger's notifier.  Problems are logged, never
// surfaced: the notifier has already returned to its caller.
func (h *StreamHandler) SeatUpdate(c echo.Context) error {
	var body struct {
		EventID int64  `json:"eventId"`
		SeatID  int64  `json:"seatId"`
		Status  string `json:"status"`
		Version int    `json:"version"`
		TraceID string `json:"traceId"`
	}
	if err := c.Bind(&body); err != nil || body.EventID <= 0 {
		log.Printf("[SEAT-UPDATE] dropping malformed update: %v", err)
		return c.NoContent(http.StatusNoContent)
	}

	ev := h.Hub.Publish(body.EventID, "SEAT_UPDATE", seatUpdateData{
		SeatID:  body.SeatID,
		Status:  body.Status,
		Version: body.Version,
	})
	log.Printf("[SEAT-UPDATE] published eventId=%d seatId=%d status=%s id=%d subscribers=%d traceId=%s",
		body.EventID, body.SeatID, body.Status, ev.ID, h.Hub.Subscribers(body.EventID), middleware.TraceID(c))
	return c.NoContent(http.StatusNoContent)
}
