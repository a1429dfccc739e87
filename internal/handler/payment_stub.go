package handler

import (
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/oveida/ticketing/internal/middleware"
)

// PaymentStubHandler simulates the external payment provider for
// development and load testing: a random delay in the range a real
// gateway exhibits, then an 80/20 success/fail verdict.  Point
// PAYMENT_URL at a real authorization service to replace it.
type PaymentStubHandler struct{}

// Authorize handles POST /payments/authorize.
func (h *PaymentStubHandler) Authorize(c echo.Context) error {
	var body struct {
		OrderID int64 `json:"orderId"`
	}
	if err := c.Bind(&body); err != nil {
		return apiError(c, http.StatusBadRequest, CodeValidationFailed, "invalid request body")
	}
	traceID := middleware.TraceID(c)

	// 500-1500ms, imitating gateway network latency.
	time.Sleep(time.Duration(500+rand.Intn(1000)) * time.Millisecond)

	status := "fail"
	if rand.Float64() < 0.8 {
		status = "success"
	}
	log.Printf("[PAYMENT] orderId=%d status=%s traceId=%s", body.OrderID, status, traceID)
	return c.JSON(http.StatusOK, echo.Map{
		"orderId": body.OrderID,
		"status":  status,
		"traceId": traceID,
	})
}
