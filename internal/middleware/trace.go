package middleware

// trace.go propagates a per-request trace identifier.  The id is taken
// from the incoming Trace-Id header when the caller supplied one, or
// generated otherwise, then echoed back on the response so clients can
// correlate error bodies with server logs.  Handlers read it via
// TraceID(c); background work receives it through the request context.

import (
	"github.com/labstack/echo/v4"

	"github.com/oveida/ticketing/internal/trace"
)

const traceCtxKey = "trace_id"

// Trace returns the trace-id middleware.
func Trace() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(trace.Header)
			if id == "" {
				id = trace.NewID()
			}
			c.Set(traceCtxKey, id)
			c.Response().Header().Set(trace.Header, id)
			req := c.Request()
			c.SetRequest(req.WithContext(trace.WithID(req.Context(), id)))
			return next(c)
		}
	}
}

// TraceID extracts the request's trace id from the Echo context.  It
// returns a fresh id when the middleware did not run, so error bodies
// always carry something correlatable.
func TraceID(c echo.Context) string {
	if v, ok := c.Get(traceCtxKey).(string); ok && v != "" {
		return v
	}
	return trace.NewID()
}
