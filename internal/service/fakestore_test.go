package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/practice-session-booking/internal/model"
)

// fakeStore is an in-memory Store whose Lock* methods take per-row
// mutexes held until Commit or Rollback, mirroring how InnoDB record
// locks serialize the engines in production.  Writes become visible
// immediately but are undone on Rollback, and the unique keys the MySQL
// schema carries (active booking per user+session, active enrollment
// per user+semester, attendance per booking) are enforced with the same
// conflict sentinels the repository layer maps them to.
//
// Reads observe the latest committed state, matching the READ COMMITTED
// isolation the MySQL store opens its transactions with.  Counting and
// waitlist mutation fail outright when the calling transaction does not
// hold the session or semester row lock: a count taken outside the lock
// is a stale admission decision waiting to happen, so the fake refuses
// to serve it.
type fakeStore struct {
	mu sync.Mutex

	sessions    map[uint64]*model.Session
	bookings    map[uint64]*model.Booking
	attendance  map[uint64]*model.Attendance // keyed by booking id
	semesters   map[uint64]*model.Semester
	enrollments map[uint64]*model.SemesterEnrollment
	users       map[uint64]*model.User

	rowLocks map[string]*sync.Mutex
	nextID   uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:    map[uint64]*model.Session{},
		bookings:    map[uint64]*model.Booking{},
		attendance:  map[uint64]*model.Attendance{},
		semesters:   map[uint64]*model.Semester{},
		enrollments: map[uint64]*model.SemesterEnrollment{},
		users:       map[uint64]*model.User{},
	}
}

func (s *fakeStore) id() uint64 {
	s.nextID++
	return s.nextID
}

// Seed helpers.  All take the store lock so tests can call them from
// anywhere.

func (s *fakeStore) addUser(u model.User) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = &u
	return u.ID
}

func (s *fakeStore) addSession(sess model.Session) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == 0 {
		sess.ID = s.id()
	}
	s.sessions[sess.ID] = &sess
	return sess.ID
}

func (s *fakeStore) addSemester(sem model.Semester) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sem.ID == 0 {
		sem.ID = s.id()
	}
	s.semesters[sem.ID] = &sem
	return sem.ID
}

func (s *fakeStore) addEnrollment(e model.SemesterEnrollment) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		e.ID = s.id()
	}
	s.enrollments[e.ID] = &e
	return e.ID
}

func (s *fakeStore) booking(id uint64) model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.bookings[id]
}

func (s *fakeStore) enrollment(id uint64) model.SemesterEnrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.enrollments[id]
}

func (s *fakeStore) balance(userID uint64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID].CreditBalance
}

// bookingsBySession returns copies of all bookings for the session.
func (s *fakeStore) bookingsBySession(sessionID uint64) []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.SessionID == sessionID {
			out = append(out, *b)
		}
	}
	return out
}

func (s *fakeStore) rowLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rowLocks == nil {
		s.rowLocks = map[string]*sync.Mutex{}
	}
	m, ok := s.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.rowLocks[key] = m
	}
	return m
}

func (s *fakeStore) Begin(ctx context.Context) (Tx, error) {
	return &fakeTx{s: s, held: map[string]*sync.Mutex{}}, nil
}

type fakeTx struct {
	s    *fakeStore
	held map[string]*sync.Mutex
	undo []func()
	done bool
}

// lock blocks on the row mutex unless this transaction already holds
// it, exactly like re-acquiring a record lock inside one transaction.
func (t *fakeTx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	m := t.s.rowLock(key)
	m.Lock()
	t.held[key] = m
}

func (t *fakeTx) holds(key string) bool {
	_, ok := t.held[key]
	return ok
}

// requireLock rejects operations whose result is only trustworthy while
// the governing row lock is held.
func (t *fakeTx) requireLock(key, op string) error {
	if !t.holds(key) {
		return fmt.Errorf("%s without holding %s", op, key)
	}
	return nil
}

func (t *fakeTx) finish(rollback bool) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	if rollback {
		t.s.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		t.s.mu.Unlock()
	}
	t.undo = nil
	for _, m := range t.held {
		m.Unlock()
	}
	t.held = map[string]*sync.Mutex{}
	return nil
}

func (t *fakeTx) Commit() error   { return t.finish(false) }
func (t *fakeTx) Rollback() error { return t.finish(true) }

// ----- session / booking -----

func (t *fakeTx) GetSession(ctx context.Context, sessionID uint64) (*model.Session, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	sess, ok := t.s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (t *fakeTx) LockSession(ctx context.Context, sessionID uint64) (*model.Session, error) {
	t.lock(fmt.Sprintf("session:%d", sessionID))
	return t.GetSession(ctx, sessionID)
}

func (t *fakeTx) CountConfirmed(ctx context.Context, sessionID uint64) (uint32, error) {
	if err := t.requireLock(fmt.Sprintf("session:%d", sessionID), "CountConfirmed"); err != nil {
		return 0, err
	}
	return t.countByStatus(sessionID, model.BookingConfirmed), nil
}

func (t *fakeTx) CountWaitlisted(ctx context.Context, sessionID uint64) (uint32, error) {
	if err := t.requireLock(fmt.Sprintf("session:%d", sessionID), "CountWaitlisted"); err != nil {
		return 0, err
	}
	return t.countByStatus(sessionID, model.BookingWaitlisted), nil
}

func (t *fakeTx) countByStatus(sessionID uint64, status model.BookingStatus) uint32 {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var n uint32
	for _, b := range t.s.bookings {
		if b.SessionID == sessionID && b.Status == status {
			n++
		}
	}
	return n
}

func (t *fakeTx) HasActiveBooking(ctx context.Context, userID, sessionID uint64) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, b := range t.s.bookings {
		if b.UserID == userID && b.SessionID == sessionID && b.Status != model.BookingCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	// Unique key over (session_id, active_user_id).
	for _, other := range t.s.bookings {
		if other.UserID == b.UserID && other.SessionID == b.SessionID && other.Status != model.BookingCancelled {
			return ErrAlreadyBooked
		}
	}
	b.ID = t.s.id()
	cp := *b
	t.s.bookings[b.ID] = &cp
	id := b.ID
	t.undo = append(t.undo, func() { delete(t.s.bookings, id) })
	return nil
}

func (t *fakeTx) GetBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (t *fakeTx) LockBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	t.lock(fmt.Sprintf("booking:%d", bookingID))
	return t.GetBooking(ctx, bookingID)
}

func (t *fakeTx) MarkCancelled(ctx context.Context, bookingID uint64, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return ErrBookingNotFound
	}
	prev := *b
	b.Status = model.BookingCancelled
	ts := at
	b.CancelledAt = &ts
	b.WaitlistPosition = nil
	t.undo = append(t.undo, func() { *t.s.bookings[bookingID] = prev })
	return nil
}

func (t *fakeTx) LockNextWaitlisted(ctx context.Context, sessionID uint64) (*model.Booking, error) {
	if err := t.requireLock(fmt.Sprintf("session:%d", sessionID), "LockNextWaitlisted"); err != nil {
		return nil, err
	}
	// Find the head first, then lock its row.  Production does both in
	// one FOR UPDATE query; the two-step is equivalent here because the
	// caller already holds no conflicting booking lock.
	t.s.mu.Lock()
	var head *model.Booking
	for _, b := range t.s.bookings {
		if b.SessionID != sessionID || b.Status != model.BookingWaitlisted {
			continue
		}
		if head == nil || *b.WaitlistPosition < *head.WaitlistPosition {
			head = b
		}
	}
	if head == nil {
		t.s.mu.Unlock()
		return nil, nil
	}
	id := head.ID
	t.s.mu.Unlock()
	return t.LockBooking(ctx, id)
}

func (t *fakeTx) PromoteBooking(ctx context.Context, bookingID uint64) error {
	return t.setStatus(bookingID, model.BookingConfirmed)
}

func (t *fakeTx) SetConfirmed(ctx context.Context, bookingID uint64) error {
	return t.setStatus(bookingID, model.BookingConfirmed)
}

func (t *fakeTx) setStatus(bookingID uint64, status model.BookingStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return ErrBookingNotFound
	}
	prev := *b
	b.Status = status
	b.WaitlistPosition = nil
	t.undo = append(t.undo, func() { *t.s.bookings[bookingID] = prev })
	return nil
}

func (t *fakeTx) CloseWaitlistGap(ctx context.Context, sessionID uint64, removedPos uint32) error {
	if err := t.requireLock(fmt.Sprintf("session:%d", sessionID), "CloseWaitlistGap"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, b := range t.s.bookings {
		if b.SessionID != sessionID || b.Status != model.BookingWaitlisted || b.WaitlistPosition == nil {
			continue
		}
		if *b.WaitlistPosition > removedPos {
			id, prev := b.ID, *b.WaitlistPosition
			newPos := prev - 1
			b.WaitlistPosition = &newPos
			t.undo = append(t.undo, func() {
				p := prev
				t.s.bookings[id].WaitlistPosition = &p
			})
		}
	}
	return nil
}

// ----- attendance -----

func (t *fakeTx) AttendanceExists(ctx context.Context, bookingID uint64) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.attendance[bookingID]
	return ok, nil
}

func (t *fakeTx) InsertAttendance(ctx context.Context, a *model.Attendance) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.attendance[a.BookingID]; ok {
		return ErrAttendanceRecorded
	}
	a.ID = t.s.id()
	cp := *a
	t.s.attendance[a.BookingID] = &cp
	id := a.BookingID
	t.undo = append(t.undo, func() { delete(t.s.attendance, id) })
	return nil
}

// ----- tournament / enrollment -----

func (t *fakeTx) GetSemester(ctx context.Context, semesterID uint64) (*model.Semester, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	sem, ok := t.s.semesters[semesterID]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	cp := *sem
	return &cp, nil
}

func (t *fakeTx) LockSemester(ctx context.Context, semesterID uint64) (*model.Semester, error) {
	t.lock(fmt.Sprintf("semester:%d", semesterID))
	return t.GetSemester(ctx, semesterID)
}

func (t *fakeTx) CountActiveEnrollments(ctx context.Context, semesterID uint64) (uint32, error) {
	if err := t.requireLock(fmt.Sprintf("semester:%d", semesterID), "CountActiveEnrollments"); err != nil {
		return 0, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var n uint32
	for _, e := range t.s.enrollments {
		if e.SemesterID == semesterID && e.IsActive {
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) InsertEnrollment(ctx context.Context, e *model.SemesterEnrollment) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	// Unique key over (semester_id, active_user_id).
	for _, other := range t.s.enrollments {
		if other.UserID == e.UserID && other.SemesterID == e.SemesterID && other.IsActive {
			return ErrAlreadyEnrolled
		}
	}
	e.ID = t.s.id()
	cp := *e
	t.s.enrollments[e.ID] = &cp
	id := e.ID
	t.undo = append(t.undo, func() { delete(t.s.enrollments, id) })
	return nil
}

func (t *fakeTx) LockActiveEnrollment(ctx context.Context, userID, semesterID uint64) (*model.SemesterEnrollment, error) {
	t.lock(fmt.Sprintf("enrollment:%d:%d", userID, semesterID))
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, e := range t.s.enrollments {
		if e.UserID == userID && e.SemesterID == semesterID && e.IsActive {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *fakeTx) DeactivateEnrollment(ctx context.Context, enrollmentID uint64, status model.RequestStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e, ok := t.s.enrollments[enrollmentID]
	if !ok {
		return ErrNotEnrolled
	}
	prev := *e
	e.IsActive = false
	e.RequestStatus = status
	t.undo = append(t.undo, func() { *t.s.enrollments[enrollmentID] = prev })
	return nil
}

func (t *fakeTx) SetCheckin(ctx context.Context, enrollmentID uint64, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e, ok := t.s.enrollments[enrollmentID]
	if !ok {
		return ErrNotEnrolled
	}
	if e.TournamentCheckedInAt != nil {
		return nil
	}
	ts := at
	e.TournamentCheckedInAt = &ts
	t.undo = append(t.undo, func() { t.s.enrollments[enrollmentID].TournamentCheckedInAt = nil })
	return nil
}

func (t *fakeTx) CountCheckedIn(ctx context.Context, semesterID uint64) (uint32, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var n uint32
	for _, e := range t.s.enrollments {
		if e.SemesterID == semesterID && e.IsActive && e.TournamentCheckedInAt != nil {
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) ListActiveApproved(ctx context.Context, semesterID uint64) ([]model.SemesterEnrollment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []model.SemesterEnrollment
	for _, e := range t.s.enrollments {
		if e.SemesterID == semesterID && e.IsActive && e.RequestStatus == model.RequestApproved {
			out = append(out, *e)
		}
	}
	return out, nil
}

// ----- user / credits -----

func (t *fakeTx) GetUser(ctx context.Context, userID uint64) (*model.User, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	u, ok := t.s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (t *fakeTx) DeductCredits(ctx context.Context, userID uint64, cost uint32) error {
	t.lock(fmt.Sprintf("user:%d", userID))
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	u, ok := t.s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if u.CreditBalance < int64(cost) {
		return ErrInsufficientCredits
	}
	prev := u.CreditBalance
	u.CreditBalance -= int64(cost)
	t.undo = append(t.undo, func() { t.s.users[userID].CreditBalance = prev })
	return nil
}

func (t *fakeTx) RefundCredits(ctx context.Context, userID uint64, amount uint32) (int64, error) {
	t.lock(fmt.Sprintf("user:%d", userID))
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	u, ok := t.s.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	prev := u.CreditBalance
	u.CreditBalance += int64(amount)
	t.undo = append(t.undo, func() { t.s.users[userID].CreditBalance = prev })
	return u.CreditBalance, nil
}

func (t *fakeTx) CreditBalance(ctx context.Context, userID uint64) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	u, ok := t.s.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return u.CreditBalance, nil
}
