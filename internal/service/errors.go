// Package service contains the booking and enrollment engines: the
// concurrency-critical core that decides admissions, promotions and
// credit mutations.  All decisions are made inside a single store
// transaction while holding the relevant row locks, per the contract
// documented on the Store interface.
package service

import "errors"

// Sentinel errors returned by the engines.  Handlers compare with
// errors.Is and map each class to an HTTP status.  Conflict errors are
// expected outcomes of concurrency, not server failures, and must never
// be reported as 5xx.

// Not-found errors.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrUserNotFound       = errors.New("user not found")
)

// Validation errors, rejected before any lock is taken.
var (
	ErrForbidden           = errors.New("forbidden")
	ErrBookingClosed       = errors.New("booking deadline has passed")
	ErrCancelClosed        = errors.New("cancellation deadline has passed")
	ErrSessionStarted      = errors.New("session already started")
	ErrTournamentClosed    = errors.New("tournament is not open for enrollment")
	ErrMissingPrerequisite = errors.New("enrollment prerequisite not met")
	ErrCheckinNotOpen      = errors.New("check-in window has not opened yet")
	ErrCheckinClosed       = errors.New("check-in window has closed")
	ErrInvalidStatus       = errors.New("invalid status for this operation")
)

// Conflict errors: expected concurrency collisions.
var (
	ErrAlreadyBooked       = errors.New("active booking already exists for this session")
	ErrAlreadyCancelled    = errors.New("booking is already cancelled")
	ErrSessionFull         = errors.New("session has no remaining capacity")
	ErrAlreadyEnrolled     = errors.New("active enrollment already exists for this tournament")
	ErrTournamentFull      = errors.New("tournament has no remaining places")
	ErrInsufficientCredits = errors.New("insufficient credit balance")
	ErrNotEnrolled         = errors.New("no active enrollment for this tournament")
	ErrAttendanceRecorded  = errors.New("attendance already recorded for this booking")
)

// ErrPoolTooSmall is returned by BracketPlan when the seeding pool is
// too small to produce a meaningful bracket.
var ErrPoolTooSmall = errors.New("seeding pool too small for a bracket")
