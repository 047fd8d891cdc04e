package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/practice-session-booking/internal/model"
)

// SessionRepo provides access to the sessions table.  The row lock
// taken by LockByIDTx is the serialization point for all admission
// decisions on a session: confirmed-count reads and the subsequent
// booking insert happen while it is held.
type SessionRepo struct{ db *sql.DB }

// NewSessionRepo returns a SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `id, semester_id, instructor_id, title, starts_at, ends_at, capacity, created_at, updated_at`

// Create inserts a session and populates the generated ID and
// timestamps on the passed record.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (semester_id, instructor_id, title, starts_at, ends_at, capacity)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.SemesterID, s.InstructorID, s.Title, s.StartsAt.UTC(), s.EndsAt.UTC(), s.Capacity)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, s.ID)
	got, err := scanSession(row)
	if err != nil {
		return err
	}
	*s = *got
	return nil
}

// GetByID fetches a session without locking it.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetByIDTx fetches a session inside a transaction without locking.
// Used for deadline validation before any lock is taken.
func (r *SessionRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Session, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// LockByIDTx acquires an exclusive row lock on the session and returns
// it.  A concurrent caller blocks here until the holding transaction
// commits or rolls back, then observes the committed state.
func (r *SessionRepo) LockByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Session, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ? FOR UPDATE`, id)
	return scanSession(row)
}

// CountByStatusTx counts the session's bookings in the given status.
// Must be called while holding the session row lock when the result
// feeds an admission or confirmation decision; the READ COMMITTED
// isolation set in LedgerStore.Begin guarantees the count sees rows
// committed by the transaction that just released that lock.
func (r *SessionRepo) CountByStatusTx(ctx context.Context, tx *sql.Tx, sessionID uint64, status model.BookingStatus) (uint32, error) {
	var n uint32
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE session_id = ? AND status = ?`,
		sessionID, status).Scan(&n)
	return n, err
}

// ListUpcoming returns sessions starting after now, soonest first.
func (r *SessionRepo) ListUpcoming(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE starts_at > UTC_TIMESTAMP() ORDER BY starts_at ASC LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := make([]model.Session, 0)
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var (
		s          model.Session
		semesterID sql.NullInt64
	)
	err := row.Scan(&s.ID, &semesterID, &s.InstructorID, &s.Title,
		&s.StartsAt, &s.EndsAt, &s.Capacity, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if semesterID.Valid {
		sid := uint64(semesterID.Int64)
		s.SemesterID = &sid
	}
	return &s, nil
}

func scanSessionRows(rows *sql.Rows) (*model.Session, error) {
	var (
		s          model.Session
		semesterID sql.NullInt64
	)
	err := rows.Scan(&s.ID, &semesterID, &s.InstructorID, &s.Title,
		&s.StartsAt, &s.EndsAt, &s.Capacity, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if semesterID.Valid {
		sid := uint64(semesterID.Int64)
		s.SemesterID = &sid
	}
	return &s, nil
}
