package model

import "time"

// Session represents a scheduled, capacity-bounded practice event.
// Sessions are created by instructors or admins and may belong to a
// semester.  The count of CONFIRMED bookings for a session never
// exceeds Capacity; that invariant is enforced by the booking engine
// under a row lock on this record.
//
// Fields:
//  ID           – primary key identifier.
//  SemesterID   – optional semester the session belongs to.
//  InstructorID – user who runs the session.
//  Title        – short human-readable description.
//  StartsAt     – when the session begins.
//  EndsAt       – when the session ends (must be after StartsAt).
//  Capacity     – maximum number of CONFIRMED bookings.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type Session struct {
	ID           uint64    // sessions.id
	SemesterID   *uint64   // sessions.semester_id (nullable)
	InstructorID uint64    // sessions.instructor_id
	Title        string    // sessions.title
	StartsAt     time.Time // sessions.starts_at
	EndsAt       time.Time // sessions.ends_at
	Capacity     uint32    // sessions.capacity
	CreatedAt    time.Time // sessions.created_at
	UpdatedAt    time.Time // sessions.updated_at
}
