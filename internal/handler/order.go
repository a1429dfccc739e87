package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/oveida/ticketing/internal/middleware"
	"github.com/oveida/ticketing/internal/model"
	"github.com/oveida/ticketing/internal/repository"
)

// OrderStore is the slice of the order repository the handler needs.
type OrderStore interface {
	Create(ctx context.Context, o *model.Order) error
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*model.Order, error)
}

// OrderHandler exposes order creation and lookup.  Creation is
// idempotent: the client-supplied Idempotency-Key header maps to a
// unique column, so N concurrent identical requests store exactly one
// row and all responses reference the same order.
type OrderHandler struct {
	Orders OrderStore
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(orders OrderStore) *OrderHandler {
	if orders == nil {
		panic("nil order store passed to NewOrderHandler")
	}
	return &OrderHandler{Orders: orders}
}

// Create handles POST /orders.  The Idempotency-Key header is
// required.  A fresh order answers 201; a replayed key answers 200
// with the stored order unchanged.
func (h *OrderHandler) Create(c echo.Context) error {
	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		return apiError(c, http.StatusBadRequest, CodeValidationFailed, "Idempotency-Key header is required")
	}
	var body struct {
		EventID int64   `json:"eventId"`
		SeatIDs []int64 `json:"seatIds"`
	}
	if err := c.Bind(&body); err != nil {
		return apiError(c, http.StatusBadRequest, CodeValidationFailed, "invalid request body")
	}
	if body.EventID <= 0 || len(body.SeatIDs) == 0 {
		return apiError(c, http.StatusUnprocessableEntity, CodeValidationFailed, "eventId and seatIds are required")
	}

	ctx := c.Request().Context()

	// Fast path: the key was already used.
	if existing, err := h.Orders.GetByIdempotencyKey(ctx, key); err == nil {
		return c.JSON(http.StatusOK, orderResponse(existing))
	} else if !errors.Is(err, repository.ErrOrderNotFound) {
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to look up order")
	}

	order := &model.Order{
		EventID:        body.EventID,
		SeatIDs:        body.SeatIDs,
		IdempotencyKey: key,
		TraceID:        middleware.TraceID(c),
	}
	if err := h.Orders.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// Lost the race against an identical concurrent request;
			// the committed row is the single source of truth.
			stored, err := h.Orders.GetByIdempotencyKey(ctx, key)
			if err != nil {
				return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to look up order")
			}
			return c.JSON(http.StatusOK, orderResponse(stored))
		}
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to create order")
	}

	// Re-read for database-assigned timestamps.
	stored, err := h.Orders.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to look up order")
	}
	return c.JSON(http.StatusCreated, orderResponse(stored))
}

// GetByID handles GET /orders/:id.
func (h *OrderHandler) GetByID(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return apiError(c, http.StatusBadRequest, CodeValidationFailed, "invalid order id")
	}
	order, err := h.Orders.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return apiError(c, http.StatusNotFound, CodeOrderNotFound, "order not found")
		}
		return apiError(c, http.StatusInternalServerError, CodeInternalError, "failed to look up order")
	}
	return c.JSON(http.StatusOK, orderResponse(order))
}

func orderResponse(o *model.Order) echo.Map {
	return echo.Map{
		"orderId":   o.ID,
		"status":    o.Status,
		"eventId":   o.EventID,
		"seatIds":   o.SeatIDs,
		"createdAt": o.CreatedAt.UTC().Format(time.RFC3339),
	}
}
