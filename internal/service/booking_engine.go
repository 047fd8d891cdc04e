package service

import (
	"context"
	"time"

	"github.com/iliyamo/practice-session-booking/internal/model"
)

// BookingPolicy carries the lead-time rules applied to booking
// operations.  Booking must happen at least BookingLead before the
// session starts; student-initiated cancellation at least CancelLead
// before.  Staff (instructor/admin) cancellations ignore CancelLead so
// a session can still be emptied on short notice.
type BookingPolicy struct {
	BookingLead time.Duration
	CancelLead  time.Duration
}

// BookingEngine orchestrates booking create/cancel/confirm and
// attendance recording.  Every operation runs as one store transaction:
// either all of its writes commit or none do, and the row locks taken
// along the way release only at that boundary.
type BookingEngine struct {
	store  Store
	policy BookingPolicy
	now    func() time.Time
}

// NewBookingEngine constructs a BookingEngine.  The store must be
// non-nil; now defaults to time.Now when nil is passed.
func NewBookingEngine(store Store, policy BookingPolicy, now func() time.Time) *BookingEngine {
	if store == nil {
		panic("nil store passed to NewBookingEngine")
	}
	if now == nil {
		now = time.Now
	}
	return &BookingEngine{store: store, policy: policy, now: now}
}

// CancelResult reports the outcome of a cancellation, including the
// waitlisted booking promoted into the freed slot, if any.
type CancelResult struct {
	Booking  *model.Booking
	Promoted *model.Booking
}

// Create books a slot on a session for a user.  The admission decision
// (CONFIRMED vs WAITLISTED with a position) is made while holding the
// session row lock, so two concurrent calls for the same session cannot
// both observe free capacity.  The unique key on active bookings is the
// backstop for duplicate requests: when the insert trips it, the caller
// gets ErrAlreadyBooked, not a server error.
func (e *BookingEngine) Create(ctx context.Context, userID, sessionID uint64, notes string) (*model.Booking, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Validation before any lock: the session must exist and the
	// booking deadline must not have elapsed.
	sess, err := tx.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !e.now().Add(e.policy.BookingLead).Before(sess.StartsAt) {
		return nil, ErrBookingClosed
	}
	// Existence pre-check is an optimization for a friendlier error on
	// the common path; the unique key remains the guarantee.
	exists, err := tx.HasActiveBooking(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyBooked
	}

	// Serialize the admission decision on the session row.
	if _, err = tx.LockSession(ctx, sessionID); err != nil {
		return nil, err
	}
	confirmed, err := tx.CountConfirmed(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	b := &model.Booking{
		UserID:    userID,
		SessionID: sessionID,
		Notes:     notes,
		CreatedAt: e.now().UTC(),
	}
	if confirmed < sess.Capacity {
		b.Status = model.BookingConfirmed
	} else {
		waitlisted, err := tx.CountWaitlisted(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		pos := waitlisted + 1
		b.Status = model.BookingWaitlisted
		b.WaitlistPosition = &pos
	}
	if err := tx.InsertBooking(ctx, b); err != nil {
		// ErrAlreadyBooked here means a concurrent duplicate slipped
		// past the pre-check and hit the unique key.  Expected race.
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return b, nil
}

// Cancel cancels a booking and, when the cancelled booking was
// CONFIRMED, promotes the head of the waitlist into the freed slot.
// The session row lock comes first so promotion and renumbering
// serialize with concurrent admissions on the same session; the booking
// row lock behind it is the exactly-once guard: a second concurrent
// cancel blocks on it, then re-reads status CANCELLED and fails with
// ErrAlreadyCancelled instead of re-triggering a promotion.
func (e *BookingEngine) Cancel(ctx context.Context, bookingID, actorID uint64, actorRole string) (*CancelResult, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Unlocked read first to learn the session, then session row before
	// booking row to respect the lock order.
	peek, err := tx.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	sess, err := tx.LockSession(ctx, peek.SessionID)
	if err != nil {
		return nil, err
	}
	b, err := tx.LockBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	staff := actorRole == model.RoleInstructor || actorRole == model.RoleAdmin
	if b.UserID != actorID && !staff {
		return nil, ErrForbidden
	}
	if b.Status == model.BookingCancelled {
		return nil, ErrAlreadyCancelled
	}
	if !staff && !e.now().Add(e.policy.CancelLead).Before(sess.StartsAt) {
		return nil, ErrCancelClosed
	}

	wasConfirmed := b.Status == model.BookingConfirmed
	var removedPos *uint32
	if b.Status == model.BookingWaitlisted {
		removedPos = b.WaitlistPosition
	}
	now := e.now().UTC()
	if err := tx.MarkCancelled(ctx, bookingID, now); err != nil {
		return nil, err
	}
	b.Status = model.BookingCancelled
	b.CancelledAt = &now
	b.WaitlistPosition = nil

	res := &CancelResult{Booking: b}
	if wasConfirmed {
		// One freed slot, at most one promotion.  The lock on the
		// selected waitlisted row prevents a concurrent promotion from
		// choosing the same row.
		next, err := tx.LockNextWaitlisted(ctx, b.SessionID)
		if err != nil {
			return nil, err
		}
		if next != nil {
			promotedPos := *next.WaitlistPosition
			if err := tx.PromoteBooking(ctx, next.ID); err != nil {
				return nil, err
			}
			if err := tx.CloseWaitlistGap(ctx, b.SessionID, promotedPos); err != nil {
				return nil, err
			}
			next.Status = model.BookingConfirmed
			next.WaitlistPosition = nil
			res.Promoted = next
		}
	} else if removedPos != nil {
		if err := tx.CloseWaitlistGap(ctx, b.SessionID, *removedPos); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return res, nil
}

// Confirm flips a PENDING or WAITLISTED booking to CONFIRMED on behalf
// of staff.  Capacity is re-counted under the session row lock before
// the flip; an unconditional confirm would be an overbooking hole even
// without a waitlist race.
func (e *BookingEngine) Confirm(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Unlocked read first to learn the session, then session row
	// before booking row to respect the lock order.
	peek, err := tx.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	sess, err := tx.LockSession(ctx, peek.SessionID)
	if err != nil {
		return nil, err
	}
	b, err := tx.LockBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case model.BookingPending, model.BookingWaitlisted:
	case model.BookingConfirmed:
		return nil, ErrInvalidStatus
	default:
		return nil, ErrAlreadyCancelled
	}
	confirmed, err := tx.CountConfirmed(ctx, b.SessionID)
	if err != nil {
		return nil, err
	}
	if confirmed >= sess.Capacity {
		return nil, ErrSessionFull
	}
	removedPos := b.WaitlistPosition
	if err := tx.SetConfirmed(ctx, bookingID); err != nil {
		return nil, err
	}
	if removedPos != nil {
		if err := tx.CloseWaitlistGap(ctx, b.SessionID, *removedPos); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	b.Status = model.BookingConfirmed
	b.WaitlistPosition = nil
	return b, nil
}

// RecordAttendance inserts the attendance record for a booking.  The
// booking row is locked before the existence check so two concurrent
// marking calls cannot both see "no attendance yet"; the unique key on
// booking_id backs the check at the storage layer.
func (e *BookingEngine) RecordAttendance(ctx context.Context, bookingID uint64, status model.AttendanceStatus, markedBy uint64) (*model.Attendance, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := tx.LockBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingConfirmed {
		return nil, ErrInvalidStatus
	}
	exists, err := tx.AttendanceExists(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAttendanceRecorded
	}
	a := &model.Attendance{
		UserID:    b.UserID,
		SessionID: b.SessionID,
		BookingID: bookingID,
		Status:    status,
		MarkedBy:  markedBy,
		CreatedAt: e.now().UTC(),
	}
	if err := tx.InsertAttendance(ctx, a); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return a, nil
}
