// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers to distinguish
// between different failure scenarios with errors.Is. For example,
// ErrSeatAlreadyBooked marks the losing side of a commit race, which the
// orchestrator reports as a per-seat conflict rather than a generic error.
package repository

import "errors"

// ErrSeatAlreadyBooked is returned when a commit finds the seat's status
// row already booked. Exactly one of two racing commits for the same seat
// observes this error; the other wins the row lock and books the seat.
var ErrSeatAlreadyBooked = errors.New("seat already booked")

// ErrTicketNotFound is returned when a ticket id cannot be resolved to an
// event. Batch validation reports the offending ticket rather than
// guessing an event.
var ErrTicketNotFound = errors.New("ticket not found")
