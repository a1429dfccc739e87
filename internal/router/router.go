package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/oveida/ticketing/internal/config"
	"github.com/oveida/ticketing/internal/handler"
	"github.com/oveida/ticketing/internal/middleware"
)

// Handlers bundles everything the router wires up.
type Handlers struct {
	Reservations *handler.ReservationHandler
	Orders       *handler.OrderHandler
	Events       *handler.EventHandler
	Stream       *handler.StreamHandler
	Admin        *handler.AdminHandler
	PaymentStub  *handler.PaymentStubHandler
}

// Register attaches all routes and shared middleware to the Echo
// instance.  The trace middleware runs on everything so every response
// and log line carries a correlatable id; the rate limiter guards only
// the hold lifecycle, which is the endpoint group a sale rush hammers.
func Register(e *echo.Echo, h Handlers, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	e.Use(middleware.Trace())

	// Health check for load balancers and monitoring.
	e.GET("/healthz", handler.Health)

	// Hold lifecycle.
	limited := e.Group("/reservations", middleware.RateLimit(rlCfg, rdb))
	limited.POST("", h.Reservations.Create)
	limited.POST("/:eventId/:seatId/extend", h.Reservations.Extend)
	limited.DELETE("/:eventId/:seatId", h.Reservations.Release)

	// Orders.
	e.POST("/orders", h.Orders.Create)
	e.GET("/orders/:id", h.Orders.GetByID)

	// Event browsing, seat snapshot and the live stream.
	e.GET("/events", h.Events.List)
	e.GET("/events/:eventId/seats", h.Events.Seats)
	e.GET("/events/:eventId/seats/stream", h.Stream.StreamSeats)

	// Internal webhook feeding the stream broadcaster.
	e.POST("/internal/seat-update", h.Stream.SeatUpdate)

	// Administrative bulk reset.
	e.POST("/admin/events/:eventId/reset", h.Admin.ResetEvent)

	// Development payment stub; see PaymentStubHandler.
	if h.PaymentStub != nil {
		e.POST("/payments/authorize", h.PaymentStub.Authorize)
	}
}
