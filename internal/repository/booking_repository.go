package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/practice-session-booking/internal/model"
)

// BookingRepo provides access to the bookings table.  The active-
// booking uniqueness invariant (at most one non-CANCELLED booking per
// user and session) is enforced by a unique key over (session_id,
// active_user_id), where active_user_id is a generated column defined
// as IF(status = 'CANCELLED', NULL, user_id).  InsertTx surfaces a
// violation as a raw driver error that IsDuplicateEntry classifies.
type BookingRepo struct{ db *sql.DB }

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, user_id, session_id, status, waitlist_position, notes, created_at, cancelled_at`

// InsertTx inserts a booking and populates its generated ID.  The
// caller decides status and waitlist position under the session row
// lock before calling this.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (user_id, session_id, status, waitlist_position, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		b.UserID, b.SessionID, b.Status, b.WaitlistPosition, b.Notes)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// GetByIDTx fetches a booking without locking it.
func (r *BookingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return scanBooking(row)
}

// LockByIDTx acquires an exclusive row lock on the booking.  Cancel
// holds this while it re-checks status, which is what makes a second
// concurrent cancel observe CANCELLED instead of re-promoting.
func (r *BookingRepo) LockByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id)
	return scanBooking(row)
}

// HasActiveTx reports whether the user already holds a non-CANCELLED
// booking for the session.  This is the friendly pre-check; the unique
// key is the guarantee.
func (r *BookingRepo) HasActiveTx(ctx context.Context, tx *sql.Tx, userID, sessionID uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM bookings WHERE user_id = ? AND session_id = ? AND status <> 'CANCELLED' LIMIT 1`,
		userID, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LockNextWaitlistedTx locks and returns the WAITLISTED booking with
// the lowest waitlist position for the session, or nil when the
// waitlist is empty.  The lock lands on that booking row, so two
// concurrent cancellation-triggered promotions cannot both select it.
func (r *BookingRepo) LockNextWaitlistedTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (*model.Booking, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE session_id = ? AND status = 'WAITLISTED'
		 ORDER BY waitlist_position ASC LIMIT 1 FOR UPDATE`, sessionID)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// MarkCancelledTx sets the terminal CANCELLED status and clears the
// waitlist position.
func (r *BookingRepo) MarkCancelledTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = 'CANCELLED', waitlist_position = NULL, cancelled_at = ? WHERE id = ?`,
		at.UTC(), id)
	return err
}

// PromoteTx flips a WAITLISTED booking to CONFIRMED and clears its
// position.  Callers must hold the lock obtained by
// LockNextWaitlistedTx.
func (r *BookingRepo) PromoteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = 'CONFIRMED', waitlist_position = NULL WHERE id = ?`, id)
	return err
}

// SetConfirmedTx confirms a PENDING or WAITLISTED booking.  Callers
// must have re-checked capacity under the session row lock first.
func (r *BookingRepo) SetConfirmedTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = 'CONFIRMED', waitlist_position = NULL WHERE id = ?`, id)
	return err
}

// CloseWaitlistGapTx decrements the waitlist position of every
// WAITLISTED booking for the session whose position exceeds removedPos,
// restoring the contiguous 1..n sequence after a removal or promotion.
func (r *BookingRepo) CloseWaitlistGapTx(ctx context.Context, tx *sql.Tx, sessionID uint64, removedPos uint32) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bookings SET waitlist_position = waitlist_position - 1
		 WHERE session_id = ? AND status = 'WAITLISTED' AND waitlist_position > ?`,
		sessionID, removedPos)
	return err
}

// BookingDetail is a booking joined with its session for display to
// students.
type BookingDetail struct {
	ID               uint64     `json:"id"`
	SessionID        uint64     `json:"session_id"`
	SessionTitle     string     `json:"session_title"`
	StartsAt         time.Time  `json:"starts_at"`
	EndsAt           time.Time  `json:"ends_at"`
	Status           string     `json:"status"`
	WaitlistPosition *uint32    `json:"waitlist_position,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
}

// ListByUser returns the user's bookings with session details, newest
// first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]BookingDetail, error) {
	const q = `SELECT b.id, b.session_id, s.title, s.starts_at, s.ends_at,
	                  b.status, b.waitlist_position, b.notes, b.created_at, b.cancelled_at
	           FROM bookings b
	           JOIN sessions s ON s.id = b.session_id
	           WHERE b.user_id = ?
	           ORDER BY b.created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]BookingDetail, 0)
	for rows.Next() {
		var (
			d           BookingDetail
			pos         sql.NullInt64
			cancelledAt sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.SessionID, &d.SessionTitle, &d.StartsAt, &d.EndsAt,
			&d.Status, &pos, &d.Notes, &d.CreatedAt, &cancelledAt); err != nil {
			return nil, err
		}
		if pos.Valid {
			p := uint32(pos.Int64)
			d.WaitlistPosition = &p
		}
		if cancelledAt.Valid {
			t := cancelledAt.Time
			d.CancelledAt = &t
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// RosterEntry is one line of a session roster for instructors: the
// booking, its holder, and the attendance outcome when one has been
// recorded.  The optional attendance relationship is resolved here at
// load time with a LEFT JOIN rather than probed ad hoc per row.
type RosterEntry struct {
	BookingID        uint64  `json:"booking_id"`
	UserID           uint64  `json:"user_id"`
	Email            string  `json:"email"`
	Status           string  `json:"status"`
	WaitlistPosition *uint32 `json:"waitlist_position,omitempty"`
	Attendance       *string `json:"attendance,omitempty"`
}

// ListRoster returns all non-CANCELLED bookings for a session with
// holder emails and attendance, confirmed first, then the waitlist in
// position order.
func (r *BookingRepo) ListRoster(ctx context.Context, sessionID uint64) ([]RosterEntry, error) {
	const q = `SELECT b.id, b.user_id, u.email, b.status, b.waitlist_position, a.status
	           FROM bookings b
	           JOIN users u ON u.id = b.user_id
	           LEFT JOIN attendance a ON a.booking_id = b.id
	           WHERE b.session_id = ? AND b.status <> 'CANCELLED'
	           ORDER BY b.status ASC, b.waitlist_position ASC, b.created_at ASC`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]RosterEntry, 0)
	for rows.Next() {
		var (
			e          RosterEntry
			pos        sql.NullInt64
			attendance sql.NullString
		)
		if err := rows.Scan(&e.BookingID, &e.UserID, &e.Email, &e.Status, &pos, &attendance); err != nil {
			return nil, err
		}
		if pos.Valid {
			p := uint32(pos.Int64)
			e.WaitlistPosition = &p
		}
		if attendance.Valid {
			a := attendance.String
			e.Attendance = &a
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanBooking(row *sql.Row) (*model.Booking, error) {
	var (
		b           model.Booking
		pos         sql.NullInt64
		cancelledAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.UserID, &b.SessionID, &b.Status, &pos, &b.Notes,
		&b.CreatedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}
	if pos.Valid {
		p := uint32(pos.Int64)
		b.WaitlistPosition = &p
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	return &b, nil
}
