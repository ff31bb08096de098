package model

import "time"

// Booking channels recorded on a seat status row.  The channel identifies
// the sales path through which a seat was committed and is stored in the
// `type` column.  Additional channels may be introduced by the surrounding
// platform without schema changes.
const (
	ChannelAgent  = "agent"
	ChannelPOS    = "pos"
	ChannelOnline = "online"
)

// Seat status flags stored in seat_statuses.status.  A seat is either
// available for booking or durably booked; there is no intermediate
// persisted state, because in-progress selections live only in the
// ephemeral lock store.
const (
	SeatAvailable uint8 = 0
	SeatBooked    uint8 = 1
)

// SeatStatus is the durable booked/available record for one physical seat
// within one event.  It is the single source of truth for whether a seat
// has been committed to a booking.  Rows are created by layout setup (or
// lazily at commit time) and are never deleted during normal operation so
// that layouts can be reused.
//
// Fields:
//  ID        – primary key identifier.
//  EventID   – event to which this seat belongs.
//  SeatID    – canonical numeric seat identifier.
//  SectionID – section the seat sits in.
//  TicketID  – ticket type under which the seat was sold.
//  BookingID – owning booking when booked (nullable).
//  Status    – SeatAvailable or SeatBooked.
//  Type      – booking channel (agent/pos/online).
//  SeatName  – human-readable seat label used in conflict messages.
//  CreatedAt – timestamp when the record was created.
//  UpdatedAt – timestamp when the record was last updated.
type SeatStatus struct {
	ID        uint64    // seat_statuses.id
	EventID   uint64    // seat_statuses.event_id
	SeatID    uint64    // seat_statuses.seat_id
	SectionID uint64    // seat_statuses.section_id
	TicketID  uint64    // seat_statuses.ticket_id
	BookingID *uint64   // seat_statuses.booking_id (nullable)
	Status    uint8     // seat_statuses.status
	Type      string    // seat_statuses.type
	SeatName  string    // seat_statuses.seat_name
	CreatedAt time.Time // seat_statuses.created_at
	UpdatedAt time.Time // seat_statuses.updated_at
}

// Booked reports whether the row represents a committed seat.  A booked
// row always carries a non-nil BookingID.
func (s *SeatStatus) Booked() bool { return s.Status == SeatBooked }

// TicketSeatRequest names a set of seats requested under one ticket type.
// The owning event of each seat is resolved through the ticket, so batch
// validation can span multiple events in a single request.
type TicketSeatRequest struct {
	TicketID uint64        `json:"ticket_id"`
	SeatRefs []interface{} `json:"seats"`
}

// ValidationResult aggregates the outcome of a batch availability check.
// Every conflicting seat is reported at once by name rather than failing
// fast, so callers can show the complete list to the user.
type ValidationResult struct {
	Valid            bool     `json:"valid"`
	UnavailableSeats []string `json:"unavailable_seats,omitempty"`
	Message          string   `json:"message,omitempty"`
}
