package model

import "time"

// SemesterStatus enumerates the lifecycle states of a semester
// (tournament).  Enrollment is only accepted while the semester is
// OPEN.
type SemesterStatus string

const (
	SemesterOpen     SemesterStatus = "OPEN"
	SemesterClosed   SemesterStatus = "CLOSED"
	SemesterFinished SemesterStatus = "FINISHED"
)

// Semester represents a tournament period with capacity-gated, paid
// enrollment.  EntryCost is denominated in user credits and is copied
// onto each enrollment at enroll time so that later price changes do
// not alter refunds.
//
// Fields:
//  ID              – primary key identifier.
//  Name            – display name.
//  StartsAt        – tournament start; also closes the check-in window.
//  MaxPlayers      – maximum number of active enrollments.
//  EntryCost       – enrollment cost in credits (0 = free).
//  MinAge          – minimum participant age in years (0 = none).
//  RequiresLicense – whether a license number is a prerequisite.
//  Status          – OPEN, CLOSED or FINISHED.
type Semester struct {
	ID              uint64         // semesters.id
	Name            string         // semesters.name
	StartsAt        time.Time      // semesters.starts_at
	MaxPlayers      uint32         // semesters.max_players
	EntryCost       uint32         // semesters.entry_cost
	MinAge          uint32         // semesters.min_age
	RequiresLicense bool           // semesters.requires_license
	Status          SemesterStatus // semesters.status
	CreatedAt       time.Time      // semesters.created_at
	UpdatedAt       time.Time      // semesters.updated_at
}

// RequestStatus enumerates the states of an enrollment request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestWithdrawn RequestStatus = "WITHDRAWN"
)

// SemesterEnrollment is a user's enrollment in a semester.  At most one
// active enrollment exists per (user, semester); like bookings, this is
// backed by a unique key over (semester_id, active_user_id) with a
// generated column that is NULL for inactive rows.
//
// CostCredits fixes the refund amount at enroll time.
// TournamentCheckedInAt is set once by the idempotent check-in
// operation and never overwritten.
type SemesterEnrollment struct {
	ID                    uint64        // semester_enrollments.id
	UserID                uint64        // semester_enrollments.user_id
	SemesterID            uint64        // semester_enrollments.semester_id
	RequestStatus         RequestStatus // semester_enrollments.request_status
	IsActive              bool          // semester_enrollments.is_active
	PaymentVerified       bool          // semester_enrollments.payment_verified
	CostCredits           uint32        // semester_enrollments.cost_credits
	TournamentCheckedInAt *time.Time    // semester_enrollments.tournament_checked_in_at (nullable)
	CreatedAt             time.Time     // semester_enrollments.created_at
	UpdatedAt             time.Time     // semester_enrollments.updated_at
}
