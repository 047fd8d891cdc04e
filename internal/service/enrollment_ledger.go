package service

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/practice-session-booking/internal/model"
)

// EnrollmentPolicy carries the tournament-side timing rules.
// CheckinWindow is how long before the tournament start check-in opens;
// it closes at the start itself.
type EnrollmentPolicy struct {
	CheckinWindow time.Duration
}

// EnrollmentLedger handles tournament enrollment with atomic credit
// bookkeeping, pre-tournament check-in and seeding-pool resolution.
// Credits are only ever touched through the store's conditional
// update operations; the ledger never computes a balance in
// application code and writes it back.
type EnrollmentLedger struct {
	store  Store
	policy EnrollmentPolicy
	now    func() time.Time
}

// NewEnrollmentLedger constructs an EnrollmentLedger.  now defaults to
// time.Now when nil.
func NewEnrollmentLedger(store Store, policy EnrollmentPolicy, now func() time.Time) *EnrollmentLedger {
	if store == nil {
		panic("nil store passed to NewEnrollmentLedger")
	}
	if now == nil {
		now = time.Now
	}
	return &EnrollmentLedger{store: store, policy: policy, now: now}
}

// EnrollResult is returned by Enroll: the created enrollment plus the
// user's remaining credit balance after the deduction.
type EnrollResult struct {
	Enrollment *model.SemesterEnrollment
	Balance    int64
}

// RefundResult is returned by Unenroll.
type RefundResult struct {
	EnrollmentID uint64
	Refund       uint32
	Balance      int64
}

// Enroll admits a user into a tournament.  Admission is serialized on
// the semester row lock (capacity) and the cost is deducted with a
// single conditional update: when the guard matches no row, meaning the
// balance is short (possibly drained by a concurrent enrollment), the
// whole transaction aborts with ErrInsufficientCredits and no
// enrollment row is ever created.
func (l *EnrollmentLedger) Enroll(ctx context.Context, userID, semesterID uint64) (*EnrollResult, error) {
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Prerequisites, checked before any lock.
	sem, err := tx.GetSemester(ctx, semesterID)
	if err != nil {
		return nil, err
	}
	if sem.Status != model.SemesterOpen || !l.now().Before(sem.StartsAt) {
		return nil, ErrTournamentClosed
	}
	u, err := tx.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sem.RequiresLicense && (u.LicenseNo == nil || *u.LicenseNo == "") {
		return nil, ErrMissingPrerequisite
	}
	if sem.MinAge > 0 {
		if u.BirthDate == nil || ageAt(*u.BirthDate, sem.StartsAt) < int(sem.MinAge) {
			return nil, ErrMissingPrerequisite
		}
	}

	// Capacity gate under the semester row lock.
	if _, err = tx.LockSemester(ctx, semesterID); err != nil {
		return nil, err
	}
	active, err := tx.CountActiveEnrollments(ctx, semesterID)
	if err != nil {
		return nil, err
	}
	if active >= sem.MaxPlayers {
		return nil, ErrTournamentFull
	}

	// Atomic conditional deduction; never read-then-write.
	if sem.EntryCost > 0 {
		if err := tx.DeductCredits(ctx, userID, sem.EntryCost); err != nil {
			return nil, err
		}
	}
	enr := &model.SemesterEnrollment{
		UserID:          userID,
		SemesterID:      semesterID,
		RequestStatus:   model.RequestApproved,
		IsActive:        true,
		PaymentVerified: sem.EntryCost > 0,
		CostCredits:     sem.EntryCost,
		CreatedAt:       l.now().UTC(),
	}
	if err := tx.InsertEnrollment(ctx, enr); err != nil {
		// ErrAlreadyEnrolled from the unique key on active
		// enrollments; the deduction above rolls back with it.
		return nil, err
	}
	balance, err := tx.CreditBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &EnrollResult{Enrollment: enr, Balance: balance}, nil
}

// Unenroll withdraws a user's active enrollment and refunds the cost
// recorded on the enrollment row.  The FOR-UPDATE lock on the active
// row is the double-refund guard: when two unenroll calls race, the
// second blocks, then its is_active-filtered query finds nothing and
// returns ErrNotEnrolled, so exactly one refund is applied.
func (l *EnrollmentLedger) Unenroll(ctx context.Context, userID, semesterID uint64) (*RefundResult, error) {
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	enr, err := tx.LockActiveEnrollment(ctx, userID, semesterID)
	if err != nil {
		return nil, err
	}
	if enr == nil {
		return nil, ErrNotEnrolled
	}
	if err := tx.DeactivateEnrollment(ctx, enr.ID, model.RequestWithdrawn); err != nil {
		return nil, err
	}
	res := &RefundResult{EnrollmentID: enr.ID, Refund: enr.CostCredits}
	if enr.CostCredits > 0 {
		res.Balance, err = tx.RefundCredits(ctx, userID, enr.CostCredits)
		if err != nil {
			return nil, err
		}
	} else {
		res.Balance, err = tx.CreditBalance(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return res, nil
}

// RecordCheckin marks a user as checked in for a tournament.  The call
// is idempotent: a repeat returns the originally stored timestamp and
// writes nothing.  Check-in opens CheckinWindow before the tournament
// start and closes at the start.
func (l *EnrollmentLedger) RecordCheckin(ctx context.Context, userID, semesterID uint64) (time.Time, error) {
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return time.Time{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sem, err := tx.GetSemester(ctx, semesterID)
	if err != nil {
		return time.Time{}, err
	}
	now := l.now().UTC()
	opensAt := sem.StartsAt.Add(-l.policy.CheckinWindow)
	if now.Before(opensAt) {
		return time.Time{}, ErrCheckinNotOpen
	}
	if !now.Before(sem.StartsAt) {
		return time.Time{}, ErrCheckinClosed
	}
	enr, err := tx.LockActiveEnrollment(ctx, userID, semesterID)
	if err != nil {
		return time.Time{}, err
	}
	if enr == nil {
		return time.Time{}, ErrNotEnrolled
	}
	if enr.TournamentCheckedInAt != nil {
		ts := *enr.TournamentCheckedInAt
		if err := tx.Commit(); err != nil {
			return time.Time{}, err
		}
		committed = true
		return ts, nil
	}
	if err := tx.SetCheckin(ctx, enr.ID, now); err != nil {
		return time.Time{}, err
	}
	if err := tx.Commit(); err != nil {
		return time.Time{}, err
	}
	committed = true
	return now, nil
}

// ResolveSeedingPool computes the participant pool handed to bracket
// generation.  The decision rule is the binary check-in switch
// implemented in resolvePool.  After computing the pool it re-counts
// checked-in enrollments; a mismatch means an enrollment approval raced
// between the two reads and is flagged, not fatal.
func (l *EnrollmentLedger) ResolveSeedingPool(ctx context.Context, semesterID uint64) (*SeedingPool, error) {
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.GetSemester(ctx, semesterID); err != nil {
		return nil, err
	}
	enrollments, err := tx.ListActiveApproved(ctx, semesterID)
	if err != nil {
		return nil, err
	}
	pool := resolvePool(enrollments)
	if pool.Mode == PoolCheckedIn {
		checkedIn, err := tx.CountCheckedIn(ctx, semesterID)
		if err != nil {
			return nil, err
		}
		if int(checkedIn) != len(pool.UserIDs) {
			log.Printf("seeding: pool size %d does not match checked-in count %d for semester %d",
				len(pool.UserIDs), checkedIn, semesterID)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return pool, nil
}

// ageAt returns full years between birth and at.
func ageAt(birth, at time.Time) int {
	years := at.Year() - birth.Year()
	anniversary := birth.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}
