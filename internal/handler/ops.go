package handler

// This file defines the operator-facing HTTP surface of the seat locking
// subsystem: lock visibility, emergency clearing and a read-only
// availability probe.  The booking endpoints of the platform live in a
// separate service and call the reservation package in-process; nothing
// here is on the booking hot path except the probe, which is read-only.

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tixgate/event-seat-reservation/internal/reservation"
)

// OpsHandler exposes the reservation service's operator operations over
// HTTP.  Routes using it must be wrapped in the JWT middleware with the
// OPERATOR role; the handlers themselves do not re-check authorization.
type OpsHandler struct {
	Reservations *reservation.Service // orchestrator backing every endpoint
}

// NewOpsHandler constructs an OpsHandler.  The service must be non-nil.
func NewOpsHandler(svc *reservation.Service) *OpsHandler {
	if svc == nil {
		panic("nil service passed to NewOpsHandler")
	}
	return &OpsHandler{Reservations: svc}
}

// GetLockedSeats handles GET /v1/ops/events/:id/locks.  It returns the
// seats currently locked for an event together with the owning session
// tokens.  The snapshot is advisory; locks may expire immediately after.
func (h *OpsHandler) GetLockedSeats(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	locked, err := h.Reservations.GetLockedSeatsStatus(c.Request().Context(), eventID)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "lock service unavailable"})
	}
	// Render seat ids as strings so large ids survive JSON consumers that
	// treat numbers as floats.
	seats := make(map[string]string, len(locked))
	for seatID, session := range locked {
		seats[strconv.FormatUint(seatID, 10)] = session
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id": eventID,
		"count":    len(seats),
		"locks":    seats,
	})
}

// ClearEventLocks handles DELETE /v1/ops/events/:id/locks.  It
// force-releases every seat lock for the event regardless of ownership.
// This is the operator escape hatch for stuck state and is deliberately
// destructive; the reservation service logs and publishes the action.
func (h *OpsHandler) ClearEventLocks(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	cleared, err := h.Reservations.EmergencyClearEventLocks(c.Request().Context(), eventID)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "lock service unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id": eventID,
		"cleared":  cleared,
	})
}

// GetSeatAvailability handles GET /v1/events/:id/seats/:seat/availability.
// It reports whether a seat can currently be selected, considering both
// the durable booked status and foreign locks.  An optional ?session=
// query parameter lets a caller see its own locks as available.
func (h *OpsHandler) GetSeatAvailability(c echo.Context) error {
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	seatID, err := strconv.ParseUint(c.Param("seat"), 10, 64)
	if err != nil || seatID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	session := c.QueryParam("session")
	avail, err := h.Reservations.IsSeatAvailable(c.Request().Context(), seatID, eventID, session)
	if err != nil {
		// Fail closed: an unverifiable seat is reported unavailable.
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"event_id":  eventID,
			"seat_id":   seatID,
			"available": false,
			"error":     "availability could not be verified",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id":  eventID,
		"seat_id":   seatID,
		"available": avail,
	})
}

// parseEventID extracts and validates the :id path parameter.
func parseEventID(c echo.Context) (uint64, error) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return 0, echo.ErrBadRequest
	}
	return eventID, nil
}
