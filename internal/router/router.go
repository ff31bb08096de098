package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/tixgate/event-seat-reservation/internal/handler"    // import the handlers that implement the endpoints
	"github.com/tixgate/event-seat-reservation/internal/middleware" // import middleware for JWT authentication
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance: the health check used by load balancers and
// the read-only seat availability probe.
func RegisterRoutes(e *echo.Echo, h *handler.OpsHandler) {
	e.GET("/healthz", handler.Health)
	// The probe is read-only and safe to expose without a token; it never
	// reveals who holds a lock, only whether the seat can be selected.
	e.GET("/v1/events/:id/seats/:seat/availability", h.GetSeatAvailability)
}

// RegisterOps registers the operator-only lock endpoints under /v1/ops.
// All of them require a valid Bearer token carrying the OPERATOR role;
// tokens are issued by the platform's auth service, not by this process.
func RegisterOps(e *echo.Echo, h *handler.OpsHandler, jwtSecret string) {
	ops := e.Group("/v1/ops")
	ops.Use(middleware.JWTAuth(jwtSecret, "OPERATOR"))
	// Visibility: which seats are locked and by which session.
	ops.GET("/events/:id/locks", h.GetLockedSeats)
	// Override: force-release every lock for an event.  Destructive and
	// audited; never used by the booking flow itself.
	ops.DELETE("/events/:id/locks", h.ClearEventLocks)
}
