package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tixgate/event-seat-reservation/internal/model"
)

// SeatLocker is the subset of the distributed lock layer consulted during
// availability checks.  A lock held by the calling session is treated as
// available-to-this-caller, so only the owner token is needed here.
type SeatLocker interface {
	GetOwner(ctx context.Context, eventID, seatID uint64) (string, error)
}

// TicketEventResolver resolves which event a ticket belongs to.  Ticket
// persistence itself lives outside this subsystem; batch validation only
// needs the read-only lookup.
type TicketEventResolver interface {
	EventIDByTicket(ctx context.Context, ticketID uint64) (uint64, error)
}

// SeatStatusRepo provides data access to the seat_statuses table, the
// single source of truth for whether a seat is booked.  Transitions are
// race-free: every commit reads the row under an exclusive row lock inside
// a transaction, so two concurrent commits for the same seat serialize and
// exactly one wins.  The distributed lock layer only reduces contention
// before reaching this point; correctness holds even if it were bypassed.
type SeatStatusRepo struct {
	db *sql.DB
}

// NewSeatStatusRepo returns a new SeatStatusRepo bound to the provided database.
func NewSeatStatusRepo(db *sql.DB) *SeatStatusRepo { return &SeatStatusRepo{db: db} }

// DB exposes the underlying handle so callers can compose this repo's
// ...Tx methods into wider transactions.
func (r *SeatStatusRepo) DB() *sql.DB { return r.db }

// MarkBooked normalizes the seat reference and transitions the seat to
// booked inside a single transaction.  The matching row is read with
// SELECT ... FOR UPDATE so concurrent commits for the same seat serialize;
// a row already booked yields ErrSeatAlreadyBooked wrapped with the seat
// name.  When layout setup has not materialized the row yet, it is created
// directly in the booked state; the unique (event_id, seat_id) key keeps
// concurrent creates race-free.
func (r *SeatStatusRepo) MarkBooked(ctx context.Context, seatRef interface{}, bookingID, ticketID, eventID uint64, channel string) (*model.SeatStatus, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	st, err := r.markBookedTx(ctx, tx, seatRef, bookingID, ticketID, eventID, channel)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return st, nil
}

// markBookedTx performs one seat transition within an existing transaction.
// The caller must commit or roll back.
func (r *SeatStatusRepo) markBookedTx(ctx context.Context, tx *sql.Tx, seatRef interface{}, bookingID, ticketID, eventID uint64, channel string) (*model.SeatStatus, error) {
	seatID, err := model.NormalizeSeatID(seatRef)
	if err != nil {
		return nil, err
	}
	const sel = `SELECT id, section_id, status, seat_name
	             FROM seat_statuses
	             WHERE event_id = ? AND seat_id = ?
	             FOR UPDATE`
	var (
		rowID     uint64
		sectionID uint64
		status    uint8
		seatName  string
	)
	err = tx.QueryRowContext(ctx, sel, eventID, seatID).Scan(&rowID, &sectionID, &status, &seatName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		seatName = fmt.Sprintf("Seat %d", seatID)
		const ins = `INSERT INTO seat_statuses
		             (event_id, seat_id, section_id, ticket_id, booking_id, status, type, seat_name)
		             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		res, insErr := tx.ExecContext(ctx, ins,
			eventID, seatID, 0, ticketID, bookingID, model.SeatBooked, channel, seatName)
		if insErr != nil {
			return nil, insErr
		}
		id, insErr := res.LastInsertId()
		if insErr != nil {
			return nil, insErr
		}
		rowID = uint64(id)
		sectionID = 0
	case err != nil:
		return nil, err
	case status == model.SeatBooked:
		return nil, fmt.Errorf("%s: %w", seatName, ErrSeatAlreadyBooked)
	default:
		const upd = `UPDATE seat_statuses
		             SET status = ?, booking_id = ?, ticket_id = ?, type = ?, updated_at = UTC_TIMESTAMP()
		             WHERE id = ?`
		if _, err := tx.ExecContext(ctx, upd, model.SeatBooked, bookingID, ticketID, channel, rowID); err != nil {
			return nil, err
		}
	}
	bid := bookingID
	return &model.SeatStatus{
		ID:        rowID,
		EventID:   eventID,
		SeatID:    seatID,
		SectionID: sectionID,
		TicketID:  ticketID,
		BookingID: &bid,
		Status:    model.SeatBooked,
		Type:      channel,
		SeatName:  seatName,
	}, nil
}

// MarkMultiple books a set of seats under one booking, all or nothing.
// Every seat transition runs inside a single transaction; the first
// conflict (or any other failure) rolls the whole batch back, so a
// multi-seat booking never ends up half committed.
func (r *SeatStatusRepo) MarkMultiple(ctx context.Context, seatRefs []interface{}, bookingID, ticketID, eventID uint64, channel string) ([]*model.SeatStatus, error) {
	if len(seatRefs) == 0 {
		return []*model.SeatStatus{}, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	out := make([]*model.SeatStatus, 0, len(seatRefs))
	for _, ref := range seatRefs {
		st, err := r.markBookedTx(ctx, tx, ref, bookingID, ticketID, eventID, channel)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return out, nil
}

// Unmark resets a seat to available and clears its booking reference,
// typically on cancellation.  It is idempotent: unmarking a seat that is
// already available, or whose row does not exist, succeeds.
func (r *SeatStatusRepo) Unmark(ctx context.Context, seatID, eventID uint64) (bool, error) {
	const q = `UPDATE seat_statuses
	           SET status = ?, booking_id = NULL, updated_at = UTC_TIMESTAMP()
	           WHERE event_id = ? AND seat_id = ?`
	if _, err := r.db.ExecContext(ctx, q, model.SeatAvailable, eventID, seatID); err != nil {
		return false, err
	}
	return true, nil
}

// IsAvailable reports whether a seat can be selected.  A booked status row
// makes the seat unavailable; when a lock layer is supplied, a lock held
// by a different session does too (the calling session's own lock counts
// as available-to-this-caller).  Any store error makes the seat
// unavailable, so the check fails closed.
func (r *SeatStatusRepo) IsAvailable(ctx context.Context, seatID, eventID uint64, locker SeatLocker, session string) (bool, error) {
	avail, _, err := r.SeatAvailability(ctx, seatID, eventID, locker, session)
	return avail, err
}

// SeatAvailability is IsAvailable plus the seat's display name, which
// batch validation uses to report conflicts.  A missing status row means
// the seat has not been touched yet and is available; its name is derived
// from the id.
func (r *SeatStatusRepo) SeatAvailability(ctx context.Context, seatID, eventID uint64, locker SeatLocker, session string) (bool, string, error) {
	const q = `SELECT status, seat_name FROM seat_statuses WHERE event_id = ? AND seat_id = ?`
	var (
		status   uint8
		seatName string
	)
	err := r.db.QueryRowContext(ctx, q, eventID, seatID).Scan(&status, &seatName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		seatName = fmt.Sprintf("Seat %d", seatID)
	case err != nil:
		return false, "", err
	case status == model.SeatBooked:
		return false, seatName, nil
	}
	if locker != nil {
		owner, err := locker.GetOwner(ctx, eventID, seatID)
		if err != nil {
			return false, seatName, err
		}
		if owner != "" && owner != session {
			return false, seatName, nil
		}
	}
	return true, seatName, nil
}

// ValidateBatch checks availability for every seat across every ticket in
// the request, resolving each seat's owning event through its ticket.  All
// violations are aggregated into one human-readable message so the caller
// can report every conflicting seat at once instead of failing fast.
func (r *SeatStatusRepo) ValidateBatch(ctx context.Context, requests []model.TicketSeatRequest, tickets TicketEventResolver, locker SeatLocker, session string) (model.ValidationResult, error) {
	var unavailable []string
	for _, req := range requests {
		eventID, err := tickets.EventIDByTicket(ctx, req.TicketID)
		if err != nil {
			return model.ValidationResult{}, err
		}
		for _, ref := range req.SeatRefs {
			seatID, err := model.NormalizeSeatID(ref)
			if err != nil {
				return model.ValidationResult{}, err
			}
			avail, name, err := r.SeatAvailability(ctx, seatID, eventID, locker, session)
			if err != nil {
				return model.ValidationResult{}, err
			}
			if !avail {
				unavailable = append(unavailable, name)
			}
		}
	}
	if len(unavailable) > 0 {
		return model.ValidationResult{
			Valid:            false,
			UnavailableSeats: unavailable,
			Message:          "seats already booked or locked: " + strings.Join(unavailable, ", "),
		}, nil
	}
	return model.ValidationResult{Valid: true}, nil
}

// CreateLayout inserts seat-status rows for a batch of seats in one
// statement, used by layout setup to materialize an event's seats in the
// available state.  Passing an empty slice has no effect and returns nil.
func (r *SeatStatusRepo) CreateLayout(ctx context.Context, seats []model.SeatStatus) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seat_statuses (event_id, seat_id, section_id, ticket_id, status, type, seat_name) VALUES `
	args := make([]interface{}, 0, len(seats)*7)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args, s.EventID, s.SeatID, s.SectionID, s.TicketID, model.SeatAvailable, s.Type, s.SeatName)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}
