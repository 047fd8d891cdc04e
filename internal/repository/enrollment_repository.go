package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/practice-session-booking/internal/model"
)

// EnrollmentRepo provides access to the semesters and
// semester_enrollments tables.  Active-enrollment uniqueness mirrors
// the booking scheme: a unique key over (semester_id, active_user_id)
// with a generated column that is NULL for inactive rows.
type EnrollmentRepo struct{ db *sql.DB }

// NewEnrollmentRepo returns an EnrollmentRepo bound to the given
// database.
func NewEnrollmentRepo(db *sql.DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

const semesterColumns = `id, name, starts_at, max_players, entry_cost, min_age, requires_license, status, created_at, updated_at`

const enrollmentColumns = `id, user_id, semester_id, request_status, is_active, payment_verified, cost_credits, tournament_checked_in_at, created_at, updated_at`

// CreateSemester inserts a semester and populates its generated fields.
func (r *EnrollmentRepo) CreateSemester(ctx context.Context, s *model.Semester) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO semesters (name, starts_at, max_players, entry_cost, min_age, requires_license, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.StartsAt.UTC(), s.MaxPlayers, s.EntryCost, s.MinAge, s.RequiresLicense, s.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	row := r.db.QueryRowContext(ctx,
		`SELECT `+semesterColumns+` FROM semesters WHERE id = ?`, s.ID)
	got, err := scanSemester(row)
	if err != nil {
		return err
	}
	*s = *got
	return nil
}

// GetSemesterByID fetches a semester without locking it.
func (r *EnrollmentRepo) GetSemesterByID(ctx context.Context, id uint64) (*model.Semester, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+semesterColumns+` FROM semesters WHERE id = ?`, id)
	return scanSemester(row)
}

// GetSemesterByIDTx fetches a semester inside a transaction without
// locking.
func (r *EnrollmentRepo) GetSemesterByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Semester, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+semesterColumns+` FROM semesters WHERE id = ?`, id)
	return scanSemester(row)
}

// LockSemesterTx acquires an exclusive row lock on the semester.  All
// concurrent enrollment admissions for the tournament serialize here.
func (r *EnrollmentRepo) LockSemesterTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Semester, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+semesterColumns+` FROM semesters WHERE id = ? FOR UPDATE`, id)
	return scanSemester(row)
}

// ListSemesters returns all semesters, newest start first.
func (r *EnrollmentRepo) ListSemesters(ctx context.Context) ([]model.Semester, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+semesterColumns+` FROM semesters ORDER BY starts_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	semesters := make([]model.Semester, 0)
	for rows.Next() {
		var (
			s model.Semester
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.StartsAt, &s.MaxPlayers, &s.EntryCost,
			&s.MinAge, &s.RequiresLicense, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		semesters = append(semesters, s)
	}
	return semesters, rows.Err()
}

// CountActiveTx counts active enrollments for the semester.  Must be
// called while holding the semester row lock when the result gates
// admission against max_players; READ COMMITTED (see LedgerStore.Begin)
// keeps the count current after the lock is acquired.
func (r *EnrollmentRepo) CountActiveTx(ctx context.Context, tx *sql.Tx, semesterID uint64) (uint32, error) {
	var n uint32
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM semester_enrollments WHERE semester_id = ? AND is_active = 1`,
		semesterID).Scan(&n)
	return n, err
}

// InsertTx inserts an enrollment and populates its generated ID.  A
// duplicate active enrollment trips the unique key; IsDuplicateEntry
// classifies the resulting error.
func (r *EnrollmentRepo) InsertTx(ctx context.Context, tx *sql.Tx, e *model.SemesterEnrollment) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO semester_enrollments
		   (user_id, semester_id, request_status, is_active, payment_verified, cost_credits)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.UserID, e.SemesterID, e.RequestStatus, e.IsActive, e.PaymentVerified, e.CostCredits)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// LockActiveTx locks the user's active enrollment row for the semester
// and returns it, or nil when none exists.  The is_active filter inside
// the locked query is the double-refund guard: after a concurrent
// unenroll commits, this query matches nothing.
func (r *EnrollmentRepo) LockActiveTx(ctx context.Context, tx *sql.Tx, userID, semesterID uint64) (*model.SemesterEnrollment, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM semester_enrollments
		 WHERE user_id = ? AND semester_id = ? AND is_active = 1 FOR UPDATE`,
		userID, semesterID)
	e, err := scanEnrollment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// DeactivateTx flips the enrollment to inactive with the given request
// status.  Callers must hold the lock from LockActiveTx.
func (r *EnrollmentRepo) DeactivateTx(ctx context.Context, tx *sql.Tx, enrollmentID uint64, status model.RequestStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE semester_enrollments SET is_active = 0, request_status = ? WHERE id = ?`,
		status, enrollmentID)
	return err
}

// SetCheckinTx stores the check-in timestamp.  The engine only calls
// this when no timestamp is present, keeping check-in idempotent.
func (r *EnrollmentRepo) SetCheckinTx(ctx context.Context, tx *sql.Tx, enrollmentID uint64, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE semester_enrollments SET tournament_checked_in_at = ? WHERE id = ? AND tournament_checked_in_at IS NULL`,
		at.UTC(), enrollmentID)
	return err
}

// CountCheckedInTx counts active approved enrollments with a check-in
// timestamp.  Used by the seeding integrity check.
func (r *EnrollmentRepo) CountCheckedInTx(ctx context.Context, tx *sql.Tx, semesterID uint64) (uint32, error) {
	var n uint32
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM semester_enrollments
		 WHERE semester_id = ? AND is_active = 1 AND request_status = 'APPROVED'
		   AND tournament_checked_in_at IS NOT NULL`,
		semesterID).Scan(&n)
	return n, err
}

// ListActiveApprovedTx returns all active APPROVED enrollments for the
// semester, the raw material of seeding-pool resolution.
func (r *EnrollmentRepo) ListActiveApprovedTx(ctx context.Context, tx *sql.Tx, semesterID uint64) ([]model.SemesterEnrollment, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+enrollmentColumns+` FROM semester_enrollments
		 WHERE semester_id = ? AND is_active = 1 AND request_status = 'APPROVED'
		 ORDER BY created_at ASC, id ASC`, semesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	enrollments := make([]model.SemesterEnrollment, 0)
	for rows.Next() {
		var (
			e         model.SemesterEnrollment
			checkedIn sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.SemesterID, &e.RequestStatus, &e.IsActive,
			&e.PaymentVerified, &e.CostCredits, &checkedIn, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if checkedIn.Valid {
			t := checkedIn.Time
			e.TournamentCheckedInAt = &t
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

// EnrollmentDetail is an enrollment row joined with the enrollee's
// email, served to staff on the tournament enrollment listing.
type EnrollmentDetail struct {
	ID              uint64     `json:"id"`
	UserID          uint64     `json:"user_id"`
	Email           string     `json:"email"`
	RequestStatus   string     `json:"request_status"`
	IsActive        bool       `json:"is_active"`
	PaymentVerified bool       `json:"payment_verified"`
	CostCredits     uint32     `json:"cost_credits"`
	CheckedInAt     *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ListBySemester returns every enrollment for the semester with the
// enrollee's email, enrollment order first.  Withdrawn rows are
// included so staff can audit refunds.
func (r *EnrollmentRepo) ListBySemester(ctx context.Context, semesterID uint64) ([]EnrollmentDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.user_id, u.email, e.request_status, e.is_active,
		        e.payment_verified, e.cost_credits, e.tournament_checked_in_at, e.created_at
		 FROM semester_enrollments e
		 JOIN users u ON u.id = e.user_id
		 WHERE e.semester_id = ?
		 ORDER BY e.created_at ASC, e.id ASC`, semesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]EnrollmentDetail, 0)
	for rows.Next() {
		var (
			d         EnrollmentDetail
			checkedIn sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.UserID, &d.Email, &d.RequestStatus, &d.IsActive,
			&d.PaymentVerified, &d.CostCredits, &checkedIn, &d.CreatedAt); err != nil {
			return nil, err
		}
		if checkedIn.Valid {
			t := checkedIn.Time
			d.CheckedInAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanSemester(row *sql.Row) (*model.Semester, error) {
	var s model.Semester
	err := row.Scan(&s.ID, &s.Name, &s.StartsAt, &s.MaxPlayers, &s.EntryCost,
		&s.MinAge, &s.RequiresLicense, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanEnrollment(row *sql.Row) (*model.SemesterEnrollment, error) {
	var (
		e         model.SemesterEnrollment
		checkedIn sql.NullTime
	)
	err := row.Scan(&e.ID, &e.UserID, &e.SemesterID, &e.RequestStatus, &e.IsActive,
		&e.PaymentVerified, &e.CostCredits, &checkedIn, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if checkedIn.Valid {
		t := checkedIn.Time
		e.TournamentCheckedInAt = &t
	}
	return &e, nil
}
