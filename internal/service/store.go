package service

import (
	"context"
	"time"

	"github.com/iliyamo/practice-session-booking/internal/model"
)

// Store opens transactions against the ledger store.  The MySQL
// implementation lives in internal/repository; tests use an in-memory
// implementation that emulates held-until-commit row locks.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the transactional contract the engines operate on.  The single
// discipline the whole core depends on: an admission, promotion or
// balance decision is never made from a row read outside an exclusive
// lock scope, and every lock acquired here is held until Commit or
// Rollback.  Lock ordering is session row -> booking row -> user row.
//
// Lock* methods block until the competing transaction finishes, exactly
// like SELECT ... FOR UPDATE.  Methods that detect a storage-level
// unique-constraint violation return the corresponding conflict
// sentinel (ErrAlreadyBooked, ErrAlreadyEnrolled, ErrAttendanceRecorded)
// so callers can surface it as a conflict rather than a server error.
type Tx interface {
	Commit() error
	Rollback() error

	// Session / booking operations.

	// GetSession reads a session without locking it.  Used for
	// pre-lock validation (deadline checks) only.
	GetSession(ctx context.Context, sessionID uint64) (*model.Session, error)
	// LockSession acquires the exclusive row lock that serializes all
	// admission decisions for one session.
	LockSession(ctx context.Context, sessionID uint64) (*model.Session, error)
	// CountConfirmed and CountWaitlisted are only meaningful while the
	// caller holds the session row lock, and must reflect the latest
	// committed state at call time, not a snapshot taken when the
	// transaction began.  The MySQL store satisfies this by running at
	// READ COMMITTED; the test store rejects an unlocked count.
	CountConfirmed(ctx context.Context, sessionID uint64) (uint32, error)
	CountWaitlisted(ctx context.Context, sessionID uint64) (uint32, error)
	HasActiveBooking(ctx context.Context, userID, sessionID uint64) (bool, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
	// GetBooking reads a booking without locking it.  Used to learn
	// the session before taking locks in session -> booking order.
	GetBooking(ctx context.Context, bookingID uint64) (*model.Booking, error)
	LockBooking(ctx context.Context, bookingID uint64) (*model.Booking, error)
	MarkCancelled(ctx context.Context, bookingID uint64, at time.Time) error
	// LockNextWaitlisted locks and returns the WAITLISTED booking with
	// the lowest waitlist position for the session, or nil when no one
	// is waitlisted.  The lock is on that booking row, which is what
	// prevents two concurrent promotions from selecting the same row.
	LockNextWaitlisted(ctx context.Context, sessionID uint64) (*model.Booking, error)
	// PromoteBooking flips a WAITLISTED booking to CONFIRMED and clears
	// its waitlist position.
	PromoteBooking(ctx context.Context, bookingID uint64) error
	SetConfirmed(ctx context.Context, bookingID uint64) error
	// CloseWaitlistGap decrements the position of every WAITLISTED
	// booking for the session whose position exceeds removedPos.
	CloseWaitlistGap(ctx context.Context, sessionID uint64, removedPos uint32) error

	// Attendance operations.

	AttendanceExists(ctx context.Context, bookingID uint64) (bool, error)
	InsertAttendance(ctx context.Context, a *model.Attendance) error

	// Tournament / enrollment operations.

	GetSemester(ctx context.Context, semesterID uint64) (*model.Semester, error)
	// LockSemester serializes all enrollment admissions for one
	// tournament, same rationale as LockSession.
	LockSemester(ctx context.Context, semesterID uint64) (*model.Semester, error)
	// CountActiveEnrollments carries the same contract as the session
	// counts: semester lock held, latest committed state.
	CountActiveEnrollments(ctx context.Context, semesterID uint64) (uint32, error)
	InsertEnrollment(ctx context.Context, e *model.SemesterEnrollment) error
	// LockActiveEnrollment locks the user's active enrollment row,
	// filtered on is_active, and returns nil when none exists.  After a
	// concurrent unenroll commits, the filter sees no row, which is the
	// double-refund guard.
	LockActiveEnrollment(ctx context.Context, userID, semesterID uint64) (*model.SemesterEnrollment, error)
	DeactivateEnrollment(ctx context.Context, enrollmentID uint64, status model.RequestStatus) error
	SetCheckin(ctx context.Context, enrollmentID uint64, at time.Time) error
	CountCheckedIn(ctx context.Context, semesterID uint64) (uint32, error)
	ListActiveApproved(ctx context.Context, semesterID uint64) ([]model.SemesterEnrollment, error)

	// User / credit operations.

	GetUser(ctx context.Context, userID uint64) (*model.User, error)
	// DeductCredits subtracts cost from the user's balance with a
	// single conditional update (balance >= cost); it returns
	// ErrInsufficientCredits when the guard matched no row.
	DeductCredits(ctx context.Context, userID uint64, cost uint32) error
	// RefundCredits adds amount to the user's balance atomically and
	// returns the resulting balance.
	RefundCredits(ctx context.Context, userID uint64, amount uint32) (int64, error)
	CreditBalance(ctx context.Context, userID uint64) (int64, error)
}
