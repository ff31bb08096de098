package repository

import (
	"context"
	"database/sql"
	"errors"
)

// TicketRepo provides the read-only ticket lookups this subsystem needs.
// Tickets themselves are owned by the surrounding platform; only the
// ticket-to-event resolution used during batch validation lives here.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// EventIDByTicket resolves the event a ticket belongs to.  It returns
// ErrTicketNotFound when no ticket with the given id exists.
func (r *TicketRepo) EventIDByTicket(ctx context.Context, ticketID uint64) (uint64, error) {
	const q = `SELECT event_id FROM tickets WHERE id = ?`
	var eventID uint64
	err := r.db.QueryRowContext(ctx, q, ticketID).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrTicketNotFound
	}
	if err != nil {
		return 0, err
	}
	return eventID, nil
}
