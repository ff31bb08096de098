// Package queue defines message payloads exchanged over the message broker.
package queue

// SeatBookedEvent is published when seats are durably marked booked.
// It carries enough information for downstream consumers to notify,
// log or feed analytics without querying the primary database.
type SeatBookedEvent struct {
	EventID   uint64   `json:"event_id"`
	BookingID uint64   `json:"booking_id"`
	TicketID  uint64   `json:"ticket_id"`
	SeatIDs   []uint64 `json:"seat_ids"`
	SeatNames []string `json:"seats"`
	Channel   string   `json:"channel"`
	BookedAt  string   `json:"booked_at"`
}

// SeatLocksClearedEvent is published when an operator force-clears every
// seat lock for an event, so monitoring can correlate the intervention
// with any booking anomalies around it.
type SeatLocksClearedEvent struct {
	EventID   uint64 `json:"event_id"`
	Cleared   int    `json:"cleared"`
	ClearedAt string `json:"cleared_at"`
}
