package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/practice-session-booking/internal/model"
	"github.com/iliyamo/practice-session-booking/internal/service"
)

// LedgerStore implements service.Store on top of MySQL, delegating each
// operation to the repositories and translating storage-level outcomes
// (sql.ErrNoRows, unique-key violations) into the service sentinels.
// Row locks taken through it are InnoDB record locks and release at
// Commit/Rollback, which is exactly the contract service.Tx specifies.
type LedgerStore struct {
	db          *sql.DB
	sessions    *SessionRepo
	bookings    *BookingRepo
	attendance  *AttendanceRepo
	enrollments *EnrollmentRepo
	users       *UserRepo
}

// NewLedgerStore builds a LedgerStore.  All repositories must be bound
// to the same *sql.DB.
func NewLedgerStore(db *sql.DB, sessions *SessionRepo, bookings *BookingRepo, attendance *AttendanceRepo, enrollments *EnrollmentRepo, users *UserRepo) *LedgerStore {
	if db == nil || sessions == nil || bookings == nil || attendance == nil || enrollments == nil || users == nil {
		panic("nil dependency passed to NewLedgerStore")
	}
	return &LedgerStore{
		db:          db,
		sessions:    sessions,
		bookings:    bookings,
		attendance:  attendance,
		enrollments: enrollments,
		users:       users,
	}
}

// Begin opens a database transaction at READ COMMITTED.  Under InnoDB's
// default REPEATABLE READ, the unlocked validation reads the engines do
// before locking would pin a read view, and the capacity/waitlist
// counts taken after acquiring the session or semester row lock would
// still see that stale snapshot instead of rows committed by the
// transaction that just released the lock.  READ COMMITTED makes every
// post-lock count observe the latest committed state.
func (s *LedgerStore) Begin(ctx context.Context) (service.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	return &ledgerTx{tx: tx, s: s}, nil
}

type ledgerTx struct {
	tx *sql.Tx
	s  *LedgerStore
}

func (t *ledgerTx) Commit() error   { return t.tx.Commit() }
func (t *ledgerTx) Rollback() error { return t.tx.Rollback() }

// mapNotFound converts sql.ErrNoRows into the given sentinel and passes
// every other error through.
func mapNotFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}

func (t *ledgerTx) GetSession(ctx context.Context, sessionID uint64) (*model.Session, error) {
	sess, err := t.s.sessions.GetByIDTx(ctx, t.tx, sessionID)
	if err != nil {
		return nil, mapNotFound(err, service.ErrSessionNotFound)
	}
	return sess, nil
}

func (t *ledgerTx) LockSession(ctx context.Context, sessionID uint64) (*model.Session, error) {
	sess, err := t.s.sessions.LockByIDTx(ctx, t.tx, sessionID)
	if err != nil {
		return nil, mapNotFound(err, service.ErrSessionNotFound)
	}
	return sess, nil
}

func (t *ledgerTx) CountConfirmed(ctx context.Context, sessionID uint64) (uint32, error) {
	return t.s.sessions.CountByStatusTx(ctx, t.tx, sessionID, model.BookingConfirmed)
}

func (t *ledgerTx) CountWaitlisted(ctx context.Context, sessionID uint64) (uint32, error) {
	return t.s.sessions.CountByStatusTx(ctx, t.tx, sessionID, model.BookingWaitlisted)
}

func (t *ledgerTx) HasActiveBooking(ctx context.Context, userID, sessionID uint64) (bool, error) {
	return t.s.bookings.HasActiveTx(ctx, t.tx, userID, sessionID)
}

func (t *ledgerTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	if err := t.s.bookings.InsertTx(ctx, t.tx, b); err != nil {
		if IsDuplicateEntry(err) {
			return service.ErrAlreadyBooked
		}
		return err
	}
	return nil
}

func (t *ledgerTx) GetBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	b, err := t.s.bookings.GetByIDTx(ctx, t.tx, bookingID)
	if err != nil {
		return nil, mapNotFound(err, service.ErrBookingNotFound)
	}
	return b, nil
}

func (t *ledgerTx) LockBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	b, err := t.s.bookings.LockByIDTx(ctx, t.tx, bookingID)
	if err != nil {
		return nil, mapNotFound(err, service.ErrBookingNotFound)
	}
	return b, nil
}

func (t *ledgerTx) MarkCancelled(ctx context.Context, bookingID uint64, at time.Time) error {
	return t.s.bookings.MarkCancelledTx(ctx, t.tx, bookingID, at)
}

func (t *ledgerTx) LockNextWaitlisted(ctx context.Context, sessionID uint64) (*model.Booking, error) {
	return t.s.bookings.LockNextWaitlistedTx(ctx, t.tx, sessionID)
}

func (t *ledgerTx) PromoteBooking(ctx context.Context, bookingID uint64) error {
	return t.s.bookings.PromoteTx(ctx, t.tx, bookingID)
}

func (t *ledgerTx) SetConfirmed(ctx context.Context, bookingID uint64) error {
	return t.s.bookings.SetConfirmedTx(ctx, t.tx, bookingID)
}

func (t *ledgerTx) CloseWaitlistGap(ctx context.Context, sessionID uint64, removedPos uint32) error {
	return t.s.bookings.CloseWaitlistGapTx(ctx, t.tx, sessionID, removedPos)
}

func (t *ledgerTx) AttendanceExists(ctx context.Context, bookingID uint64) (bool, error) {
	return t.s.attendance.ExistsForBookingTx(ctx, t.tx, bookingID)
}

func (t *ledgerTx) InsertAttendance(ctx context.Context, a *model.Attendance) error {
	if err := t.s.attendance.InsertTx(ctx, t.tx, a); err != nil {
		if IsDuplicateEntry(err) {
			return service.ErrAttendanceRecorded
		}
		return err
	}
	return nil
}

func (t *ledgerTx) GetSemester(ctx context.Context, semesterID uint64) (*model.Semester, error) {
	sem, err := t.s.enrollments.GetSemesterByIDTx(ctx, t.tx, semesterID)
	if err != nil {
		return nil, mapNotFound(err, service.ErrTournamentNotFound)
	}
	return sem, nil
}

func (t *ledgerTx) LockSemester(ctx context.Context, semesterID uint64) (*model.Semester, error) {
	sem, err := t.s.enrollments.LockSemesterTx(ctx, t.tx, semesterID)
	if err != nil {
		return nil, mapNotFound(err, service.ErrTournamentNotFound)
	}
	return sem, nil
}

func (t *ledgerTx) CountActiveEnrollments(ctx context.Context, semesterID uint64) (uint32, error) {
	return t.s.enrollments.CountActiveTx(ctx, t.tx, semesterID)
}

func (t *ledgerTx) InsertEnrollment(ctx context.Context, e *model.SemesterEnrollment) error {
	if err := t.s.enrollments.InsertTx(ctx, t.tx, e); err != nil {
		if IsDuplicateEntry(err) {
			return service.ErrAlreadyEnrolled
		}
		return err
	}
	return nil
}

func (t *ledgerTx) LockActiveEnrollment(ctx context.Context, userID, semesterID uint64) (*model.SemesterEnrollment, error) {
	return t.s.enrollments.LockActiveTx(ctx, t.tx, userID, semesterID)
}

func (t *ledgerTx) DeactivateEnrollment(ctx context.Context, enrollmentID uint64, status model.RequestStatus) error {
	return t.s.enrollments.DeactivateTx(ctx, t.tx, enrollmentID, status)
}

func (t *ledgerTx) SetCheckin(ctx context.Context, enrollmentID uint64, at time.Time) error {
	return t.s.enrollments.SetCheckinTx(ctx, t.tx, enrollmentID, at)
}

func (t *ledgerTx) CountCheckedIn(ctx context.Context, semesterID uint64) (uint32, error) {
	return t.s.enrollments.CountCheckedInTx(ctx, t.tx, semesterID)
}

func (t *ledgerTx) ListActiveApproved(ctx context.Context, semesterID uint64) ([]model.SemesterEnrollment, error) {
	return t.s.enrollments.ListActiveApprovedTx(ctx, t.tx, semesterID)
}

func (t *ledgerTx) GetUser(ctx context.Context, userID uint64) (*model.User, error) {
	u, err := t.s.users.GetByIDTx(ctx, t.tx, userID)
	if err != nil {
		return nil, mapNotFound(err, service.ErrUserNotFound)
	}
	return u, nil
}

func (t *ledgerTx) DeductCredits(ctx context.Context, userID uint64, cost uint32) error {
	if err := t.s.users.DeductCreditsTx(ctx, t.tx, userID, cost); err != nil {
		return mapNotFound(err, service.ErrInsufficientCredits)
	}
	return nil
}

func (t *ledgerTx) RefundCredits(ctx context.Context, userID uint64, amount uint32) (int64, error) {
	return t.s.users.RefundCreditsTx(ctx, t.tx, userID, amount)
}

func (t *ledgerTx) CreditBalance(ctx context.Context, userID uint64) (int64, error) {
	return t.s.users.CreditBalanceTx(ctx, t.tx, userID)
}
