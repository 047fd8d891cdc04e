package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/practice-session-booking/internal/model"
	"github.com/iliyamo/practice-session-booking/internal/queue"
	"github.com/iliyamo/practice-session-booking/internal/repository"
	"github.com/iliyamo/practice-session-booking/internal/service"
)

// TournamentHandler serves tournament semesters: admin setup, paid
// enrollment, check-in and seeding-pool resolution.
type TournamentHandler struct {
	Ledger      *service.EnrollmentLedger
	Enrollments *repository.EnrollmentRepo
	Users       *repository.UserRepo
}

func NewTournamentHandler(l *service.EnrollmentLedger, e *repository.EnrollmentRepo, u *repository.UserRepo) *TournamentHandler {
	if l == nil || e == nil || u == nil {
		panic("nil dependency passed to NewTournamentHandler")
	}
	return &TournamentHandler{Ledger: l, Enrollments: e, Users: u}
}

type createSemesterReq struct {
	Name            string    `json:"name"`
	StartsAt        time.Time `json:"starts_at"`
	MaxPlayers      uint32    `json:"max_players"`
	EntryCost       uint32    `json:"entry_cost"`
	MinAge          uint32    `json:"min_age"`
	RequiresLicense bool      `json:"requires_license"`
}

type semesterResp struct {
	ID              uint64    `json:"id"`
	Name            string    `json:"name"`
	StartsAt        time.Time `json:"starts_at"`
	MaxPlayers      uint32    `json:"max_players"`
	EntryCost       uint32    `json:"entry_cost"`
	MinAge          uint32    `json:"min_age,omitempty"`
	RequiresLicense bool      `json:"requires_license,omitempty"`
	Status          string    `json:"status"`
}

func toSemesterResp(s *model.Semester) semesterResp {
	return semesterResp{
		ID:              s.ID,
		Name:            s.Name,
		StartsAt:        s.StartsAt,
		MaxPlayers:      s.MaxPlayers,
		EntryCost:       s.EntryCost,
		MinAge:          s.MinAge,
		RequiresLicense: s.RequiresLicense,
		Status:          string(s.Status),
	}
}

// CreateSemester opens a new tournament semester.  Admin only.
func (h *TournamentHandler) CreateSemester(c echo.Context) error {
	var req createSemesterReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}
	if req.MaxPlayers == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "max_players must be positive"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s := &model.Semester{
		Name:            strings.TrimSpace(req.Name),
		StartsAt:        req.StartsAt.UTC(),
		MaxPlayers:      req.MaxPlayers,
		EntryCost:       req.EntryCost,
		MinAge:          req.MinAge,
		RequiresLicense: req.RequiresLicense,
		Status:          model.SemesterOpen,
	}
	if err := h.Enrollments.CreateSemester(ctx, s); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create semester failed"})
	}
	return c.JSON(http.StatusCreated, toSemesterResp(s))
}

// List returns all semesters, newest first.
func (h *TournamentHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	semesters, err := h.Enrollments.ListSemesters(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list semesters failed"})
	}
	out := make([]semesterResp, 0, len(semesters))
	for i := range semesters {
		out = append(out, toSemesterResp(&semesters[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"tournaments": out})
}

// Get returns a single semester.
func (h *TournamentHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tournament id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Enrollments.GetSemesterByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return serviceError(c, service.ErrTournamentNotFound)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load semester failed"})
	}
	return c.JSON(http.StatusOK, toSemesterResp(s))
}

// Enroll admits the caller into the tournament, deducting the entry
// cost atomically.  The response carries the remaining balance so the
// client does not need a follow-up read.
func (h *TournamentHandler) Enroll(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tournament id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Ledger.Enroll(ctx, uid, id)
	if err != nil {
		return serviceError(c, err)
	}
	h.publishEnrollment(ctx, res.Enrollment)
	return c.JSON(http.StatusCreated, echo.Map{
		"enrollment_id":  res.Enrollment.ID,
		"semester_id":    res.Enrollment.SemesterID,
		"status":         string(res.Enrollment.RequestStatus),
		"cost_credits":   res.Enrollment.CostCredits,
		"credit_balance": res.Balance,
	})
}

// Unenroll withdraws the caller's active enrollment and refunds the
// cost recorded on it.
func (h *TournamentHandler) Unenroll(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tournament id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Ledger.Unenroll(ctx, uid, id)
	if err != nil {
		return serviceError(c, err)
	}
	h.publishRefund(ctx, res.EnrollmentID, uid, id, res.Refund)
	return c.JSON(http.StatusOK, echo.Map{
		"refunded_credits": res.Refund,
		"credit_balance":   res.Balance,
	})
}

// Checkin marks the caller as checked in for the tournament.  The call
// is idempotent; a repeat returns the originally stored timestamp and
// the same 200 response.
func (h *TournamentHandler) Checkin(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tournament id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	ts, err := h.Ledger.RecordCheckin(ctx, uid, id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"semester_id":   id,
		"checked_in_at": ts.UTC().Format(time.RFC3339),
	})
}

// ListEnrollments returns every enrollment for the tournament with the
// enrollee's email, withdrawn rows included.  Staff only.
func (h *TournamentHandler) ListEnrollments(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tournament id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Enrollments.GetSemesterByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return serviceError(c, service.ErrTournamentNotFound)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load semester failed"})
	}
	enrollments, err := h.Enrollments.ListBySemester(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list enrollments failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"semester_id": id, "enrollments": enrollments})
}

// SeedingPool resolves the participant pool for bracket generation and
// reports the single-elimination structure for it.  Staff only.
func (h *TournamentHandler) SeedingPool(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tournament id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	pool, err := h.Ledger.ResolveSeedingPool(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}
	resp := echo.Map{
		"semester_id": id,
		"mode":        string(pool.Mode),
		"user_ids":    pool.UserIDs,
		"pool_size":   len(pool.UserIDs),
	}
	size, byes, err := service.BracketPlan(len(pool.UserIDs))
	if err != nil {
		// The pool itself is still useful to the caller even when it is
		// too small to form a bracket.
		resp["bracket_error"] = err.Error()
	} else {
		resp["bracket_size"] = size
		resp["byes"] = byes
	}
	return c.JSON(http.StatusOK, resp)
}

type topUpReq struct {
	Amount uint32 `json:"amount"`
}

// TopUpCredits adds credits to a user's balance.  Admin only.
func (h *TournamentHandler) TopUpCredits(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req topUpReq
	if err := c.Bind(&req); err != nil || req.Amount == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be positive"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	balance, err := h.Users.AddCredits(ctx, id, req.Amount)
	if err != nil {
		if err == sql.ErrNoRows {
			return serviceError(c, service.ErrUserNotFound)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "top up failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":        id,
		"credit_balance": balance,
	})
}

func (h *TournamentHandler) publishEnrollment(ctx context.Context, e *model.SemesterEnrollment) {
	ev := queue.EnrollmentEvent{
		Kind:         queue.KindEnrollmentCreated,
		EnrollmentID: e.ID,
		UserID:       e.UserID,
		SemesterID:   e.SemesterID,
		CostCredits:  int64(e.CostCredits),
		OccurredAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if s, err := h.Enrollments.GetSemesterByID(ctx, e.SemesterID); err == nil {
		ev.SemesterName = s.Name
	}
	_ = queue.Publish(ctx, ev)
}

func (h *TournamentHandler) publishRefund(ctx context.Context, enrollmentID, userID, semesterID uint64, refund uint32) {
	ev := queue.EnrollmentEvent{
		Kind:         queue.KindEnrollmentRefunded,
		EnrollmentID: enrollmentID,
		UserID:       userID,
		SemesterID:   semesterID,
		CostCredits:  int64(refund),
		OccurredAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if s, err := h.Enrollments.GetSemesterByID(ctx, semesterID); err == nil {
		ev.SemesterName = s.Name
	}
	_ = queue.Publish(ctx, ev)
}
