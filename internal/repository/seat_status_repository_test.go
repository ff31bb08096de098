package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/tixgate/event-seat-reservation/internal/model"
)

// fakeLocker is a stub of the distributed lock layer for availability
// checks.  It maps "event:seat" to the owning session.
type fakeLocker struct {
	owners map[string]string
	err    error
}

func (f *fakeLocker) GetOwner(_ context.Context, eventID, seatID uint64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := keyOf(eventID, seatID)
	return f.owners[key], nil
}

func keyOf(eventID, seatID uint64) string {
	return fmt.Sprintf("%d:%d", eventID, seatID)
}

// fakeResolver maps ticket ids to event ids.
type fakeResolver struct {
	events map[uint64]uint64
}

func (f *fakeResolver) EventIDByTicket(_ context.Context, ticketID uint64) (uint64, error) {
	eventID, ok := f.events[ticketID]
	if !ok {
		return 0, ErrTicketNotFound
	}
	return eventID, nil
}

func newMockRepo(t *testing.T) (*SeatStatusRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSeatStatusRepo(db), mock
}

func TestMarkBookedTransitionsAvailableRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, section_id, status, seat_name`).
		WithArgs(7, 101).
		WillReturnRows(sqlmock.NewRows([]string{"id", "section_id", "status", "seat_name"}).
			AddRow(55, 3, model.SeatAvailable, "A-12"))
	mock.ExpectExec(`UPDATE seat_statuses`).
		WithArgs(model.SeatBooked, 900, 42, model.ChannelOnline, 55).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	st, err := repo.MarkBooked(ctx, "seat_101", 900, 42, 7, model.ChannelOnline)
	if err != nil {
		t.Fatalf("MarkBooked error: %v", err)
	}
	if st.SeatID != 101 || st.Status != model.SeatBooked || st.SeatName != "A-12" {
		t.Fatalf("unexpected status row: %+v", st)
	}
	if st.BookingID == nil || *st.BookingID != 900 {
		t.Fatalf("BookingID = %v, want 900", st.BookingID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkBookedRejectsBookedRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, section_id, status, seat_name`).
		WithArgs(7, 101).
		WillReturnRows(sqlmock.NewRows([]string{"id", "section_id", "status", "seat_name"}).
			AddRow(55, 3, model.SeatBooked, "A-12"))
	mock.ExpectRollback()

	_, err := repo.MarkBooked(ctx, 101, 901, 42, 7, model.ChannelOnline)
	if !errors.Is(err, ErrSeatAlreadyBooked) {
		t.Fatalf("error = %v, want ErrSeatAlreadyBooked", err)
	}
	// The conflict message names the seat so callers can report it.
	if !strings.Contains(err.Error(), "A-12") {
		t.Fatalf("error %q does not name the seat", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkBookedCreatesMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, section_id, status, seat_name`).
		WithArgs(7, 101).
		WillReturnRows(sqlmock.NewRows([]string{"id", "section_id", "status", "seat_name"}))
	mock.ExpectExec(`INSERT INTO seat_statuses`).
		WithArgs(7, 101, 0, 42, 900, model.SeatBooked, model.ChannelAgent, "Seat 101").
		WillReturnResult(sqlmock.NewResult(77, 1))
	mock.ExpectCommit()

	st, err := repo.MarkBooked(ctx, 101, 900, 42, 7, model.ChannelAgent)
	if err != nil {
		t.Fatalf("MarkBooked error: %v", err)
	}
	if st.ID != 77 || st.SeatName != "Seat 101" {
		t.Fatalf("unexpected status row: %+v", st)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkBookedRejectsInvalidRef(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := repo.MarkBooked(context.Background(), "abc", 900, 42, 7, model.ChannelOnline)
	if !errors.Is(err, model.ErrInvalidSeatRef) {
		t.Fatalf("error = %v, want ErrInvalidSeatRef", err)
	}
}

func TestMarkMultipleRollsBackWholeBatchOnConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	// First seat books cleanly.
	mock.ExpectQuery(`SELECT id, section_id, status, seat_name`).
		WithArgs(7, 101).
		WillReturnRows(sqlmock.NewRows([]string{"id", "section_id", "status", "seat_name"}).
			AddRow(55, 3, model.SeatAvailable, "A-12"))
	mock.ExpectExec(`UPDATE seat_statuses`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Second seat is already booked: the whole transaction rolls back.
	mock.ExpectQuery(`SELECT id, section_id, status, seat_name`).
		WithArgs(7, 102).
		WillReturnRows(sqlmock.NewRows([]string{"id", "section_id", "status", "seat_name"}).
			AddRow(56, 3, model.SeatBooked, "A-13"))
	mock.ExpectRollback()

	_, err := repo.MarkMultiple(ctx, []interface{}{101, 102}, 900, 42, 7, model.ChannelOnline)
	if !errors.Is(err, ErrSeatAlreadyBooked) {
		t.Fatalf("error = %v, want ErrSeatAlreadyBooked", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUnmarkIsIdempotent(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	// Affecting zero rows (seat never booked, or row absent) still succeeds.
	mock.ExpectExec(`UPDATE seat_statuses`).
		WithArgs(model.SeatAvailable, 7, 101).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Unmark(ctx, 101, 7)
	if err != nil || !ok {
		t.Fatalf("Unmark = (%v, %v), want (true, nil)", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSeatAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("booked row is unavailable", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT status, seat_name`).
			WithArgs(7, 101).
			WillReturnRows(sqlmock.NewRows([]string{"status", "seat_name"}).
				AddRow(model.SeatBooked, "A-12"))
		avail, name, err := repo.SeatAvailability(ctx, 101, 7, nil, "")
		if err != nil {
			t.Fatalf("SeatAvailability error: %v", err)
		}
		if avail || name != "A-12" {
			t.Fatalf("SeatAvailability = (%v, %q), want (false, \"A-12\")", avail, name)
		}
	})

	t.Run("missing row is available", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT status, seat_name`).
			WithArgs(7, 101).
			WillReturnRows(sqlmock.NewRows([]string{"status", "seat_name"}))
		avail, name, err := repo.SeatAvailability(ctx, 101, 7, nil, "")
		if err != nil {
			t.Fatalf("SeatAvailability error: %v", err)
		}
		if !avail || name != "Seat 101" {
			t.Fatalf("SeatAvailability = (%v, %q), want (true, \"Seat 101\")", avail, name)
		}
	})

	t.Run("foreign lock blocks, own lock does not", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		locker := &fakeLocker{owners: map[string]string{keyOf(7, 101): "session-b"}}

		mock.ExpectQuery(`SELECT status, seat_name`).
			WithArgs(7, 101).
			WillReturnRows(sqlmock.NewRows([]string{"status", "seat_name"}).
				AddRow(model.SeatAvailable, "A-12"))
		avail, _, err := repo.SeatAvailability(ctx, 101, 7, locker, "session-a")
		if err != nil {
			t.Fatalf("SeatAvailability error: %v", err)
		}
		if avail {
			t.Fatal("seat locked by another session reported available")
		}

		mock.ExpectQuery(`SELECT status, seat_name`).
			WithArgs(7, 101).
			WillReturnRows(sqlmock.NewRows([]string{"status", "seat_name"}).
				AddRow(model.SeatAvailable, "A-12"))
		avail, _, err = repo.SeatAvailability(ctx, 101, 7, locker, "session-b")
		if err != nil {
			t.Fatalf("SeatAvailability error: %v", err)
		}
		if !avail {
			t.Fatal("caller's own lock reported the seat unavailable")
		}
	})

	t.Run("lock store failure fails closed", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		locker := &fakeLocker{err: errors.New("connection refused")}
		mock.ExpectQuery(`SELECT status, seat_name`).
			WithArgs(7, 101).
			WillReturnRows(sqlmock.NewRows([]string{"status", "seat_name"}).
				AddRow(model.SeatAvailable, "A-12"))
		avail, _, err := repo.SeatAvailability(ctx, 101, 7, locker, "session-a")
		if err == nil {
			t.Fatal("expected an error from the failing lock store")
		}
		if avail {
			t.Fatal("unverifiable seat reported available")
		}
	})
}

func TestValidateBatchAggregatesConflicts(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	resolver := &fakeResolver{events: map[uint64]uint64{42: 7}}
	locker := &fakeLocker{owners: map[string]string{keyOf(7, 103): "session-b"}}

	// Seat 101 booked, 102 free, 103 locked by another session: both
	// violations must be reported together.
	mock.ExpectQuery(`SELECT status, seat_name`).
		WithArgs(7, 101).
		WillReturnRows(sqlmock.NewRows([]string{"status", "seat_name"}).
			AddRow(model.SeatBooked, "A-1"))
	mock.ExpectQuery(`SELECT status, seat_name`).
		WithArgs(7, 102).
		WillReturnRows(sqlmock.NewRows([]string{"status", "seat_name"}).
			AddRow(model.SeatAvailable, "A-2"))
	mock.ExpectQuery(`SELECT status, seat_name`).
		WithArgs(7, 103).
		WillReturnRows(sqlmock.NewRows([]string{"status", "seat_name"}).
			AddRow(model.SeatAvailable, "A-3"))

	res, err := repo.ValidateBatch(ctx, []model.TicketSeatRequest{
		{TicketID: 42, SeatRefs: []interface{}{"seat_101", 102, "103"}},
	}, resolver, locker, "session-a")
	if err != nil {
		t.Fatalf("ValidateBatch error: %v", err)
	}
	if res.Valid {
		t.Fatal("batch with conflicts reported valid")
	}
	if len(res.UnavailableSeats) != 2 {
		t.Fatalf("UnavailableSeats = %v, want two entries", res.UnavailableSeats)
	}
	if !strings.Contains(res.Message, "A-1") || !strings.Contains(res.Message, "A-3") {
		t.Fatalf("message %q does not name both conflicting seats", res.Message)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestValidateBatchUnknownTicket(t *testing.T) {
	repo, _ := newMockRepo(t)
	resolver := &fakeResolver{events: map[uint64]uint64{}}

	_, err := repo.ValidateBatch(context.Background(), []model.TicketSeatRequest{
		{TicketID: 99, SeatRefs: []interface{}{1}},
	}, resolver, nil, "")
	if !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("error = %v, want ErrTicketNotFound", err)
	}
}
