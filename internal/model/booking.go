package model

import "time"

// BookingStatus enumerates the lifecycle states of a booking.
type BookingStatus string

const (
	BookingPending    BookingStatus = "PENDING"
	BookingConfirmed  BookingStatus = "CONFIRMED"
	BookingWaitlisted BookingStatus = "WAITLISTED"
	BookingCancelled  BookingStatus = "CANCELLED"
)

// Booking records a user's claim on a session slot.  Status transitions
// are PENDING -> {CONFIRMED, WAITLISTED} -> CANCELLED and
// WAITLISTED -> CONFIRMED (promotion only).  CANCELLED is terminal.
// WaitlistPosition is non-nil exactly when Status is WAITLISTED; the
// positions of a session's waitlisted bookings always form the
// contiguous sequence 1..n.
//
// At most one non-CANCELLED booking exists per (user, session) pair.
// The database backs this with a unique key over (session_id,
// active_user_id), where active_user_id is a generated column that is
// NULL for cancelled rows.
type Booking struct {
	ID               uint64        // bookings.id
	UserID           uint64        // bookings.user_id
	SessionID        uint64        // bookings.session_id
	Status           BookingStatus // bookings.status
	WaitlistPosition *uint32       // bookings.waitlist_position (nullable)
	Notes            string        // bookings.notes
	CreatedAt        time.Time     // bookings.created_at
	CancelledAt      *time.Time    // bookings.cancelled_at (nullable)
}

// AttendanceStatus enumerates recorded attendance outcomes.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLate    AttendanceStatus = "LATE"
	AttendanceExcused AttendanceStatus = "EXCUSED"
)

// Attendance is the one-to-one optional companion of a booking.  A
// unique key on booking_id guarantees at most one row per booking
// regardless of application-level checks.
type Attendance struct {
	ID        uint64           // attendance.id
	UserID    uint64           // attendance.user_id
	SessionID uint64           // attendance.session_id
	BookingID uint64           // attendance.booking_id
	Status    AttendanceStatus // attendance.status
	MarkedBy  uint64           // attendance.marked_by
	CreatedAt time.Time        // attendance.created_at
}
