// Package queue defines message payloads exchanged over the message broker.
package queue

// Event kinds carried on the booking.events queue.
const (
	KindBookingConfirmed   = "booking.confirmed"
	KindBookingWaitlisted  = "booking.waitlisted"
	KindBookingPromoted    = "booking.promoted"
	KindEnrollmentCreated  = "enrollment.created"
	KindEnrollmentRefunded = "enrollment.refunded"
)

// BookingEvent is published when a booking is created, promoted from the
// waitlist, or confirmed by an instructor. It carries enough information
// for downstream consumers to log or notify without querying the primary
// database.
type BookingEvent struct {
	Kind             string  `json:"kind"`
	BookingID        uint64  `json:"booking_id"`
	UserID           uint64  `json:"user_id"`
	SessionID        uint64  `json:"session_id"`
	SessionTitle     string  `json:"session_title"`
	StartsAt         string  `json:"starts_at"`
	WaitlistPosition *uint32 `json:"waitlist_position,omitempty"`
	OccurredAt       string  `json:"occurred_at"`
}

// EnrollmentEvent is published when a student enrolls in a tournament
// semester and credits have been deducted, or withdraws and the stored
// cost is refunded. CostCredits carries the amount moved either way.
type EnrollmentEvent struct {
	Kind         string `json:"kind"`
	EnrollmentID uint64 `json:"enrollment_id"`
	UserID       uint64 `json:"user_id"`
	SemesterID   uint64 `json:"semester_id"`
	SemesterName string `json:"semester_name"`
	CostCredits  int64  `json:"cost_credits"`
	OccurredAt   string `json:"occurred_at"`
}
