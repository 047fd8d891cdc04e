package service

import (
	"sort"

	"github.com/iliyamo/practice-session-booking/internal/model"
)

// PoolMode labels how a seeding pool was derived.
type PoolMode string

const (
	// PoolCheckedIn: at least one enrollee checked in, so the pool is
	// exactly the checked-in enrollees.
	PoolCheckedIn PoolMode = "checked_in"
	// PoolFallback: nobody checked in; the pool falls back to all
	// active approved enrollees.  Kept for tournaments that predate
	// check-in.
	PoolFallback PoolMode = "fallback"
)

// SeedingPool is the ordered participant set handed to bracket
// generation, plus the mode that produced it.
type SeedingPool struct {
	UserIDs []uint64 `json:"user_ids"`
	Mode    PoolMode `json:"mode"`
}

// resolvePool applies the binary check-in switch: if any enrollment has
// a check-in timestamp the pool is exactly those with one (ordered by
// check-in time, user id as tie-break); otherwise all active approved
// enrollments qualify (ordered by enrollment time, user id tie-break).
// A single check-in excludes every non-checked-in enrollee; there is
// no partial threshold.
func resolvePool(enrollments []model.SemesterEnrollment) *SeedingPool {
	checkedIn := make([]model.SemesterEnrollment, 0, len(enrollments))
	for _, e := range enrollments {
		if e.TournamentCheckedInAt != nil {
			checkedIn = append(checkedIn, e)
		}
	}
	if len(checkedIn) > 0 {
		sort.Slice(checkedIn, func(i, j int) bool {
			a, b := checkedIn[i], checkedIn[j]
			if !a.TournamentCheckedInAt.Equal(*b.TournamentCheckedInAt) {
				return a.TournamentCheckedInAt.Before(*b.TournamentCheckedInAt)
			}
			return a.UserID < b.UserID
		})
		return &SeedingPool{UserIDs: userIDs(checkedIn), Mode: PoolCheckedIn}
	}
	all := make([]model.SemesterEnrollment, len(enrollments))
	copy(all, enrollments)
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.UserID < b.UserID
	})
	return &SeedingPool{UserIDs: userIDs(all), Mode: PoolFallback}
}

func userIDs(enrollments []model.SemesterEnrollment) []uint64 {
	ids := make([]uint64, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.UserID)
	}
	return ids
}

// BracketPlan computes the single-elimination structure for a pool of
// size p: the bracket size is the smallest power of two >= max(p, 2)
// and byes fill the difference.  Pools smaller than two cannot form a
// bracket and yield ErrPoolTooSmall; the resolver itself never rejects
// small pools, that is this caller-side check.  For any accepted pool,
// byes < bracketSize/2 holds.
func BracketPlan(p int) (bracketSize, byes int, err error) {
	if p < 2 {
		return 0, 0, ErrPoolTooSmall
	}
	bracketSize = 2
	for bracketSize < p {
		bracketSize *= 2
	}
	return bracketSize, bracketSize - p, nil
}
