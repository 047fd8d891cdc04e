package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/practice-session-booking/internal/model"
)

// AttendanceRepo provides access to the attendance table.  A unique key
// on booking_id guarantees at most one row per booking; the engine's
// lock-then-check is the first line of defense and the key the second.
type AttendanceRepo struct{ db *sql.DB }

// NewAttendanceRepo returns an AttendanceRepo bound to the given
// database.
func NewAttendanceRepo(db *sql.DB) *AttendanceRepo { return &AttendanceRepo{db: db} }

// ExistsForBookingTx reports whether an attendance row already
// references the booking.  Call while holding the booking row lock.
func (r *AttendanceRepo) ExistsForBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM attendance WHERE booking_id = ? LIMIT 1`, bookingID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertTx inserts an attendance record and populates its generated ID.
// A unique-key violation surfaces as a raw driver error classified by
// IsDuplicateEntry.
func (r *AttendanceRepo) InsertTx(ctx context.Context, tx *sql.Tx, a *model.Attendance) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO attendance (user_id, session_id, booking_id, status, marked_by)
		 VALUES (?, ?, ?, ?, ?)`,
		a.UserID, a.SessionID, a.BookingID, a.Status, a.MarkedBy)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// ListBySession returns all attendance rows for a session.
func (r *AttendanceRepo) ListBySession(ctx context.Context, sessionID uint64) ([]model.Attendance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, booking_id, status, marked_by, created_at
		 FROM attendance WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := make([]model.Attendance, 0)
	for rows.Next() {
		var a model.Attendance
		if err := rows.Scan(&a.ID, &a.UserID, &a.SessionID, &a.BookingID,
			&a.Status, &a.MarkedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
