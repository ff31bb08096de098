// Package reservation orchestrates the two-phase reserve-then-commit
// booking protocol: it validates seat availability against the durable
// seat-status store, acquires batch locks in the distributed lock layer,
// and exposes release and operator-override operations.  It is the only
// component the booking workflow should call directly; the session-token
// lifecycle is hidden behind it.  The service itself is stateless between
// calls; a booking attempt is purely call-scoped.
package reservation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tixgate/event-seat-reservation/internal/config"
	"github.com/tixgate/event-seat-reservation/internal/lock"
	"github.com/tixgate/event-seat-reservation/internal/model"
	"github.com/tixgate/event-seat-reservation/internal/queue"
	"github.com/tixgate/event-seat-reservation/internal/repository"
)

// Failure reasons surfaced in LockOutcome.  Callers in the booking flow
// must treat any non-success outcome as "no lock held".
const (
	ReasonSeatsUnavailable = "seats already booked or locked"
	ReasonLockFailed       = "failed to acquire locks"
	ReasonLockUnavailable  = "lock service unavailable"
	ReasonNoSeats          = "no seats requested"
)

// EventPublisher is the broker hand-off used after commits and operator
// interventions.  Publishing is best-effort: the orchestrator logs and
// swallows publish errors, so implementations must never block bookings.
type EventPublisher interface {
	PublishSeatBooked(ctx context.Context, event queue.SeatBookedEvent) error
	PublishSeatLocksCleared(ctx context.Context, event queue.SeatLocksClearedEvent) error
}

// LockOutcome is the structured result of a validate-and-lock attempt.
// Failed lists the seat ids that blocked the attempt; Reason is a short
// operator-readable string, with conflicting seat names appended when the
// failure came from the availability check.
type LockOutcome struct {
	Success   bool     `json:"success"`
	SessionID string   `json:"session_id"`
	Locked    []uint64 `json:"locked"`
	Failed    []uint64 `json:"failed,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// ReleaseOutcome counts how many locks a release call removed and how
// many it could not (unowned, already expired, or store failure).
type ReleaseOutcome struct {
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

// Service combines the lock manager and the seat status store.  All public
// methods convert internal faults into structured results or sentinel
// errors; none of them panic, and none of them let an infrastructure fault
// grant a lock or a booking.
type Service struct {
	locks     *lock.Manager
	seats     *repository.SeatStatusRepo
	tickets   *repository.TicketRepo
	publisher EventPublisher
	cfg       config.LockConfig
}

// NewService constructs the orchestrator.  The lock manager and seat repo
// must be non-nil; the publisher may be nil, which disables event
// publication.
func NewService(locks *lock.Manager, seats *repository.SeatStatusRepo, tickets *repository.TicketRepo, publisher EventPublisher, cfg config.LockConfig) *Service {
	if locks == nil || seats == nil {
		panic("nil dependency passed to reservation.NewService")
	}
	return &Service{locks: locks, seats: seats, tickets: tickets, publisher: publisher, cfg: cfg}
}

// ValidateAndLockSeats runs the two-step check-then-lock protocol for one
// booking attempt.  The cheap authoritative availability check runs first,
// so no distributed locks are taken for seats that are already hopeless;
// only when every requested seat passes does the batch acquisition run.
// When no session token is supplied, a fresh one is generated and returned
// in the outcome for the caller to use on release.
func (s *Service) ValidateAndLockSeats(ctx context.Context, eventID uint64, seatIDs []uint64, session string) LockOutcome {
	if session == "" {
		token, err := NewSessionToken()
		if err != nil {
			return LockOutcome{Reason: "failed to generate session token"}
		}
		session = token
	}
	out := LockOutcome{SessionID: session}

	seats := uniqueSeats(seatIDs)
	if len(seats) == 0 {
		out.Reason = ReasonNoSeats
		return out
	}

	var (
		blocked      []uint64
		blockedNames []string
	)
	for _, id := range seats {
		avail, name, err := s.seats.SeatAvailability(ctx, id, eventID, s.locks, session)
		if err != nil {
			out.Failed = seats
			if errors.Is(err, lock.ErrStoreUnavailable) {
				out.Reason = ReasonLockUnavailable
			} else {
				out.Reason = "seat availability could not be verified"
			}
			return out
		}
		if !avail {
			blocked = append(blocked, id)
			blockedNames = append(blockedNames, name)
		}
	}
	if len(blocked) > 0 {
		out.Failed = blocked
		out.Reason = ReasonSeatsUnavailable + ": " + strings.Join(blockedNames, ", ")
		return out
	}

	res := s.locks.AcquireBatch(ctx, eventID, seats, session, s.cfg.TTL)
	if !res.Success {
		out.Failed = res.Failed
		if res.Reason != "" {
			out.Reason = res.Reason
		} else {
			out.Reason = ReasonLockFailed
		}
		return out
	}
	out.Success = true
	out.Locked = res.Locked
	return out
}

// ReleaseSeatLocks releases the given seats for a session.  The booking
// workflow must call it once its booking write has committed or
// irrecoverably failed, regardless of outcome.
func (s *Service) ReleaseSeatLocks(ctx context.Context, eventID uint64, seatIDs []uint64, session string) ReleaseOutcome {
	released, failed := s.locks.ReleaseBatch(ctx, eventID, seatIDs, session)
	return ReleaseOutcome{Released: released, Failed: failed}
}

// ExtendSeatLocks refreshes the TTL of the given seats for a session,
// silently skipping seats the session does not own.  Callers use it to
// keep a long-running checkout alive without re-validating.
func (s *Service) ExtendSeatLocks(ctx context.Context, eventID uint64, seatIDs []uint64, session string) int {
	return s.locks.ExtendBatch(ctx, eventID, seatIDs, session, s.cfg.TTL)
}

// MarkSeatAsBooked commits a single seat to a booking through the durable
// store.  The row-level lock inside the repo is the final authority; this
// succeeds or fails independently of the distributed lock state.
func (s *Service) MarkSeatAsBooked(ctx context.Context, seatRef interface{}, bookingID, ticketID, eventID uint64, channel string) (*model.SeatStatus, error) {
	return s.seats.MarkBooked(ctx, seatRef, bookingID, ticketID, eventID, channel)
}

// MarkSeatsAsBooked commits a batch of seats to one booking, all or
// nothing, and publishes a seat.booked event on success.  Publication is
// best-effort; a broker failure never unwinds a committed booking.
func (s *Service) MarkSeatsAsBooked(ctx context.Context, seatRefs []interface{}, bookingID, ticketID, eventID uint64, channel string) ([]*model.SeatStatus, error) {
	statuses, err := s.seats.MarkMultiple(ctx, seatRefs, bookingID, ticketID, eventID, channel)
	if err != nil {
		return nil, err
	}
	if s.publisher != nil && len(statuses) > 0 {
		event := queue.SeatBookedEvent{
			EventID:   eventID,
			BookingID: bookingID,
			TicketID:  ticketID,
			Channel:   channel,
			BookedAt:  time.Now().UTC().Format(time.RFC3339),
		}
		for _, st := range statuses {
			event.SeatIDs = append(event.SeatIDs, st.SeatID)
			event.SeatNames = append(event.SeatNames, st.SeatName)
		}
		if pubErr := s.publisher.PublishSeatBooked(ctx, event); pubErr != nil {
			log.Printf("reservation: seat.booked publish failed for booking %d: %v", bookingID, pubErr)
		}
	}
	return statuses, nil
}

// UnmarkSeat resets a seat to available, clearing its booking reference.
// It is idempotent and safe to call for seats that were never booked.
func (s *Service) UnmarkSeat(ctx context.Context, seatID, eventID uint64) (bool, error) {
	return s.seats.Unmark(ctx, seatID, eventID)
}

// IsSeatAvailable reports whether a seat can be selected right now,
// considering both the durable status and any foreign lock.  A lock held
// by the supplied session counts as available-to-this-caller.
func (s *Service) IsSeatAvailable(ctx context.Context, seatID, eventID uint64, session string) (bool, error) {
	return s.seats.IsAvailable(ctx, seatID, eventID, s.locks, session)
}

// ValidateTicketSeats checks availability for every seat across every
// ticket in the request, resolving each seat's event through its ticket
// and aggregating all conflicts into one result.
func (s *Service) ValidateTicketSeats(ctx context.Context, requests []model.TicketSeatRequest, session string) (model.ValidationResult, error) {
	if s.tickets == nil {
		return model.ValidationResult{}, fmt.Errorf("ticket lookup not configured")
	}
	return s.seats.ValidateBatch(ctx, requests, s.tickets, s.locks, session)
}

// GetLockedSeatsStatus returns the seats currently locked within an event
// mapped to their owning session tokens.  Operator visibility only; the
// snapshot may be stale the moment it returns.
func (s *Service) GetLockedSeatsStatus(ctx context.Context, eventID uint64) (map[uint64]string, error) {
	return s.locks.LockedSeats(ctx, eventID)
}

// EmergencyClearEventLocks force-releases every seat lock for an event,
// ignoring ownership.  Operator override only, never part of the booking
// hot path.  The intervention is logged and published for audit.
func (s *Service) EmergencyClearEventLocks(ctx context.Context, eventID uint64) (int, error) {
	cleared, err := s.locks.ClearAllForEvent(ctx, eventID)
	if err != nil {
		return cleared, err
	}
	log.Printf("reservation: emergency clear removed %d locks for event %d", cleared, eventID)
	if s.publisher != nil {
		event := queue.SeatLocksClearedEvent{
			EventID:   eventID,
			Cleared:   cleared,
			ClearedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if pubErr := s.publisher.PublishSeatLocksCleared(ctx, event); pubErr != nil {
			log.Printf("reservation: seat.locks.cleared publish failed for event %d: %v", eventID, pubErr)
		}
	}
	return cleared, nil
}

// NewSessionToken generates an opaque session token for one user's
// in-progress seat selection.  It is not an authentication session; it
// only scopes lock ownership.  The underlying call to crypto/rand ensures
// unguessable tokens.
func NewSessionToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// uniqueSeats drops zero ids and duplicates while preserving the caller's
// order; ordering for deadlock avoidance happens inside the lock manager.
func uniqueSeats(seatIDs []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(seatIDs))
	out := make([]uint64, 0, len(seatIDs))
	for _, id := range seatIDs {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
