package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/practice-session-booking/internal/model"
)

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testPolicy() BookingPolicy {
	return BookingPolicy{BookingLead: 24 * time.Hour, CancelLead: 12 * time.Hour}
}

func fixedNow() time.Time { return testBase }

// newBookingFixture seeds a store with one session and n student users,
// returning the engine, the store, the session id and the user ids.
func newBookingFixture(t *testing.T, capacity uint32, users int) (*BookingEngine, *fakeStore, uint64, []uint64) {
	t.Helper()
	store := newFakeStore()
	sessionID := store.addSession(model.Session{
		InstructorID: 999,
		Title:        "forehand drills",
		StartsAt:     testBase.Add(48 * time.Hour),
		EndsAt:       testBase.Add(50 * time.Hour),
		Capacity:     capacity,
	})
	ids := make([]uint64, 0, users)
	for i := 0; i < users; i++ {
		ids = append(ids, store.addUser(model.User{Role: model.RoleStudent}))
	}
	return NewBookingEngine(store, testPolicy(), fixedNow), store, sessionID, ids
}

func TestCreateConfirmsUntilCapacityThenWaitlists(t *testing.T) {
	t.Parallel()
	engine, _, sessionID, users := newBookingFixture(t, 2, 5)
	ctx := context.Background()

	var statuses []model.BookingStatus
	var positions []*uint32
	for _, uid := range users {
		b, err := engine.Create(ctx, uid, sessionID, "")
		if err != nil {
			t.Fatalf("Create(user %d): %v", uid, err)
		}
		statuses = append(statuses, b.Status)
		positions = append(positions, b.WaitlistPosition)
	}

	for i := 0; i < 2; i++ {
		if statuses[i] != model.BookingConfirmed {
			t.Errorf("booking %d: status = %s, want CONFIRMED", i, statuses[i])
		}
		if positions[i] != nil {
			t.Errorf("booking %d: unexpected waitlist position %d", i, *positions[i])
		}
	}
	for i := 2; i < 5; i++ {
		if statuses[i] != model.BookingWaitlisted {
			t.Errorf("booking %d: status = %s, want WAITLISTED", i, statuses[i])
		}
		want := uint32(i - 1)
		if positions[i] == nil || *positions[i] != want {
			t.Errorf("booking %d: waitlist position = %v, want %d", i, positions[i], want)
		}
	}
}

func TestCreateConcurrentAdmission(t *testing.T) {
	t.Parallel()
	engine, _, sessionID, users := newBookingFixture(t, 1, 2)
	ctx := context.Background()

	results := make([]*model.Booking, len(users))
	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, uid := range users {
		wg.Add(1)
		go func(i int, uid uint64) {
			defer wg.Done()
			results[i], errs[i] = engine.Create(ctx, uid, sessionID, "")
		}(i, uid)
	}
	wg.Wait()

	var confirmed, waitlisted int
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("Create %d: %v", i, errs[i])
		}
		switch results[i].Status {
		case model.BookingConfirmed:
			confirmed++
		case model.BookingWaitlisted:
			waitlisted++
			if results[i].WaitlistPosition == nil || *results[i].WaitlistPosition != 1 {
				t.Errorf("waitlisted booking position = %v, want 1", results[i].WaitlistPosition)
			}
		}
	}
	if confirmed != 1 || waitlisted != 1 {
		t.Fatalf("confirmed = %d, waitlisted = %d; want exactly one of each", confirmed, waitlisted)
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	t.Parallel()
	engine, _, sessionID, users := newBookingFixture(t, 5, 1)
	ctx := context.Background()

	if _, err := engine.Create(ctx, users[0], sessionID, ""); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := engine.Create(ctx, users[0], sessionID, ""); !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("second Create: err = %v, want ErrAlreadyBooked", err)
	}
}

func TestCreateConcurrentDuplicate(t *testing.T) {
	t.Parallel()
	engine, store, sessionID, users := newBookingFixture(t, 5, 1)
	ctx := context.Background()

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Create(ctx, users[0], sessionID, "")
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyBooked):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != attempts-1 {
		t.Fatalf("ok = %d, dup = %d; want 1 success and %d conflicts", ok, dup, attempts-1)
	}
	if got := len(store.bookingsBySession(sessionID)); got != 1 {
		t.Fatalf("stored bookings = %d, want 1", got)
	}
}

func TestCreateAfterDeadline(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	// Starts in 12 hours; the 24-hour lead has already passed.
	sessionID := store.addSession(model.Session{
		Title:    "late drills",
		StartsAt: testBase.Add(12 * time.Hour),
		EndsAt:   testBase.Add(14 * time.Hour),
		Capacity: 4,
	})
	uid := store.addUser(model.User{Role: model.RoleStudent})
	engine := NewBookingEngine(store, testPolicy(), fixedNow)

	if _, err := engine.Create(context.Background(), uid, sessionID, ""); !errors.Is(err, ErrBookingClosed) {
		t.Fatalf("err = %v, want ErrBookingClosed", err)
	}
}

func TestCreateSessionNotFound(t *testing.T) {
	t.Parallel()
	engine, _, _, users := newBookingFixture(t, 1, 1)
	if _, err := engine.Create(context.Background(), users[0], 424242, ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

// seedWaitlist books all users in order and returns their booking ids.
func seedWaitlist(t *testing.T, engine *BookingEngine, sessionID uint64, users []uint64) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, len(users))
	for _, uid := range users {
		b, err := engine.Create(context.Background(), uid, sessionID, "")
		if err != nil {
			t.Fatalf("seed Create(user %d): %v", uid, err)
		}
		ids = append(ids, b.ID)
	}
	return ids
}

func TestCancelConfirmedPromotesWaitlistHead(t *testing.T) {
	t.Parallel()
	engine, store, sessionID, users := newBookingFixture(t, 1, 3)
	bookings := seedWaitlist(t, engine, sessionID, users)
	ctx := context.Background()

	res, err := engine.Cancel(ctx, bookings[0], users[0], model.RoleStudent)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Booking.Status != model.BookingCancelled {
		t.Errorf("cancelled booking status = %s", res.Booking.Status)
	}
	if res.Promoted == nil || res.Promoted.ID != bookings[1] {
		t.Fatalf("promoted = %+v, want booking %d", res.Promoted, bookings[1])
	}
	if res.Promoted.Status != model.BookingConfirmed {
		t.Errorf("promoted status = %s, want CONFIRMED", res.Promoted.Status)
	}

	// The remaining waitlist renumbers to 1..n with no gap.
	third := store.booking(bookings[2])
	if third.Status != model.BookingWaitlisted || third.WaitlistPosition == nil || *third.WaitlistPosition != 1 {
		t.Errorf("third booking = %s pos %v, want WAITLISTED pos 1", third.Status, third.WaitlistPosition)
	}
}

func TestCancelWaitlistedClosesGap(t *testing.T) {
	t.Parallel()
	engine, store, sessionID, users := newBookingFixture(t, 1, 4)
	bookings := seedWaitlist(t, engine, sessionID, users)
	ctx := context.Background()

	// Cancel the middle of the waitlist (position 2 of 3).
	res, err := engine.Cancel(ctx, bookings[2], users[2], model.RoleStudent)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Promoted != nil {
		t.Fatalf("cancelling a waitlisted booking must not promote, got %+v", res.Promoted)
	}

	wantPos := map[uint64]uint32{bookings[1]: 1, bookings[3]: 2}
	for id, want := range wantPos {
		b := store.booking(id)
		if b.WaitlistPosition == nil || *b.WaitlistPosition != want {
			t.Errorf("booking %d: position = %v, want %d", id, b.WaitlistPosition, want)
		}
	}
}

func TestCancelSerializesWithAdmission(t *testing.T) {
	t.Parallel()
	engine, store, sessionID, users := newBookingFixture(t, 1, 3)
	bookings := seedWaitlist(t, engine, sessionID, users)
	ctx := context.Background()
	late := store.addUser(model.User{Role: model.RoleStudent})

	// Emulate an admission caught mid-flight: it holds the session lock
	// and has computed waitlist position 3 but not yet inserted.
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.LockSession(ctx, sessionID); err != nil {
		t.Fatalf("lock session: %v", err)
	}
	waitlisted, err := tx.CountWaitlisted(ctx, sessionID)
	if err != nil {
		t.Fatalf("count waitlisted: %v", err)
	}
	pos := waitlisted + 1

	done := make(chan error, 1)
	go func() {
		_, err := engine.Cancel(ctx, bookings[1], users[1], model.RoleStudent)
		done <- err
	}()

	// Cancelling a waitlisted booking renumbers the waitlist, so it must
	// block on the session lock the admission holds.  A cancel that
	// completes here renumbers {1,2} to {1} and the pending insert at 3
	// would leave the gapped waitlist {1,3}.
	select {
	case err := <-done:
		t.Fatalf("Cancel finished during admission (err = %v); renumbering must wait for the session lock", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := tx.InsertBooking(ctx, &model.Booking{
		UserID:           late,
		SessionID:        sessionID,
		Status:           model.BookingWaitlisted,
		WaitlistPosition: &pos,
		CreatedAt:        testBase,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	seen := map[uint32]bool{}
	for _, b := range store.bookingsBySession(sessionID) {
		if b.Status != model.BookingWaitlisted {
			continue
		}
		if b.WaitlistPosition == nil {
			t.Fatalf("waitlisted booking %d has no position", b.ID)
		}
		if seen[*b.WaitlistPosition] {
			t.Fatalf("duplicate waitlist position %d", *b.WaitlistPosition)
		}
		seen[*b.WaitlistPosition] = true
	}
	if len(seen) != 2 || !seen[1] || !seen[2] {
		t.Fatalf("waitlist positions = %v, want contiguous {1, 2}", seen)
	}
}

func TestCancelConcurrentDoubleCancel(t *testing.T) {
	t.Parallel()
	engine, store, sessionID, users := newBookingFixture(t, 1, 3)
	bookings := seedWaitlist(t, engine, sessionID, users)
	ctx := context.Background()

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Cancel(ctx, bookings[0], users[0], model.RoleStudent)
		}(i)
	}
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyCancelled):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || already != attempts-1 {
		t.Fatalf("ok = %d, already = %d; want exactly one successful cancel", ok, already)
	}

	// Exactly one promotion: the old head confirmed, the other waitlisted
	// booking moved up to position 1.
	second := store.booking(bookings[1])
	third := store.booking(bookings[2])
	if second.Status != model.BookingConfirmed {
		t.Errorf("head booking status = %s, want CONFIRMED", second.Status)
	}
	if third.Status != model.BookingWaitlisted || third.WaitlistPosition == nil || *third.WaitlistPosition != 1 {
		t.Errorf("tail booking = %s pos %v, want WAITLISTED pos 1", third.Status, third.WaitlistPosition)
	}
}

func TestCancelDeadline(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	// Starts in 6 hours; inside the 12-hour cancellation lead.
	sessionID := store.addSession(model.Session{
		Title:    "imminent",
		StartsAt: testBase.Add(6 * time.Hour),
		EndsAt:   testBase.Add(8 * time.Hour),
		Capacity: 4,
	})
	uid := store.addUser(model.User{Role: model.RoleStudent})
	engine := NewBookingEngine(store, testPolicy(), fixedNow)
	ctx := context.Background()

	b := &model.Booking{UserID: uid, SessionID: sessionID, Status: model.BookingConfirmed}
	tx, _ := store.Begin(ctx)
	if err := tx.InsertBooking(ctx, b); err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	_ = tx.Commit()

	if _, err := engine.Cancel(ctx, b.ID, uid, model.RoleStudent); !errors.Is(err, ErrCancelClosed) {
		t.Fatalf("student cancel: err = %v, want ErrCancelClosed", err)
	}
	// Staff bypass the deadline.
	if _, err := engine.Cancel(ctx, b.ID, 999, model.RoleInstructor); err != nil {
		t.Fatalf("instructor cancel: %v", err)
	}
}

func TestCancelForbiddenForOtherStudent(t *testing.T) {
	t.Parallel()
	engine, _, sessionID, users := newBookingFixture(t, 2, 2)
	bookings := seedWaitlist(t, engine, sessionID, users)

	if _, err := engine.Cancel(context.Background(), bookings[0], users[1], model.RoleStudent); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestConfirmRechecksCapacity(t *testing.T) {
	t.Parallel()
	engine, store, sessionID, users := newBookingFixture(t, 1, 2)
	bookings := seedWaitlist(t, engine, sessionID, users)
	ctx := context.Background()

	// Session is full; confirming the waitlisted booking must fail.
	if _, err := engine.Confirm(ctx, bookings[1]); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("err = %v, want ErrSessionFull", err)
	}

	// Free the slot without a promotion by seeding a cancellation
	// directly, then confirm.
	tx, _ := store.Begin(ctx)
	if err := tx.MarkCancelled(ctx, bookings[0], testBase); err != nil {
		t.Fatalf("seed cancel: %v", err)
	}
	_ = tx.Commit()

	b, err := engine.Confirm(ctx, bookings[1])
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if b.Status != model.BookingConfirmed || b.WaitlistPosition != nil {
		t.Fatalf("confirmed booking = %s pos %v", b.Status, b.WaitlistPosition)
	}
}

func TestConfirmRejectsWrongStatus(t *testing.T) {
	t.Parallel()
	engine, _, sessionID, users := newBookingFixture(t, 2, 1)
	bookings := seedWaitlist(t, engine, sessionID, users)
	ctx := context.Background()

	if _, err := engine.Confirm(ctx, bookings[0]); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("confirm CONFIRMED: err = %v, want ErrInvalidStatus", err)
	}
	if _, err := engine.Cancel(ctx, bookings[0], users[0], model.RoleStudent); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := engine.Confirm(ctx, bookings[0]); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("confirm CANCELLED: err = %v, want ErrAlreadyCancelled", err)
	}
}

func TestRecordAttendanceOnce(t *testing.T) {
	t.Parallel()
	engine, _, sessionID, users := newBookingFixture(t, 2, 2)
	bookings := seedWaitlist(t, engine, sessionID, users)
	ctx := context.Background()
	const instructorID = 999

	a, err := engine.RecordAttendance(ctx, bookings[0], model.AttendancePresent, instructorID)
	if err != nil {
		t.Fatalf("RecordAttendance: %v", err)
	}
	if a.Status != model.AttendancePresent || a.MarkedBy != instructorID {
		t.Errorf("attendance = %+v", a)
	}
	if _, err := engine.RecordAttendance(ctx, bookings[0], model.AttendanceLate, instructorID); !errors.Is(err, ErrAttendanceRecorded) {
		t.Fatalf("second mark: err = %v, want ErrAttendanceRecorded", err)
	}
}

func TestRecordAttendanceConcurrent(t *testing.T) {
	t.Parallel()
	engine, _, sessionID, users := newBookingFixture(t, 2, 1)
	bookings := seedWaitlist(t, engine, sessionID, users)
	ctx := context.Background()

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.RecordAttendance(ctx, bookings[0], model.AttendancePresent, 999)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAttendanceRecorded):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("successful marks = %d, want 1", ok)
	}
}

func TestRecordAttendanceRequiresConfirmed(t *testing.T) {
	t.Parallel()
	engine, _, sessionID, users := newBookingFixture(t, 1, 2)
	bookings := seedWaitlist(t, engine, sessionID, users)

	if _, err := engine.RecordAttendance(context.Background(), bookings[1], model.AttendancePresent, 999); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}
