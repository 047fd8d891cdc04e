package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/practice-session-booking/internal/model"
	"github.com/iliyamo/practice-session-booking/internal/repository"
	"github.com/iliyamo/practice-session-booking/internal/service"
)

// SessionHandler serves practice-session CRUD, roster and attendance
// reads.
type SessionHandler struct {
	Sessions   *repository.SessionRepo
	Bookings   *repository.BookingRepo
	Attendance *repository.AttendanceRepo
}

func NewSessionHandler(s *repository.SessionRepo, b *repository.BookingRepo, a *repository.AttendanceRepo) *SessionHandler {
	if s == nil || b == nil || a == nil {
		panic("nil repository passed to NewSessionHandler")
	}
	return &SessionHandler{Sessions: s, Bookings: b, Attendance: a}
}

type createSessionReq struct {
	SemesterID *uint64   `json:"semester_id"`
	Title      string    `json:"title"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Capacity   uint32    `json:"capacity"`
}

type sessionResp struct {
	ID           uint64    `json:"id"`
	SemesterID   *uint64   `json:"semester_id,omitempty"`
	InstructorID uint64    `json:"instructor_id"`
	Title        string    `json:"title"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	Capacity     uint32    `json:"capacity"`
}

func toSessionResp(s *model.Session) sessionResp {
	return sessionResp{
		ID:           s.ID,
		SemesterID:   s.SemesterID,
		InstructorID: s.InstructorID,
		Title:        s.Title,
		StartsAt:     s.StartsAt,
		EndsAt:       s.EndsAt,
		Capacity:     s.Capacity,
	}
}

// Create registers a new practice session owned by the calling
// instructor.
func (h *SessionHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createSessionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title required"})
	}
	if req.Capacity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity must be positive"})
	}
	if !req.EndsAt.After(req.StartsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be after starts_at"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s := &model.Session{
		SemesterID:   req.SemesterID,
		InstructorID: uid,
		Title:        req.Title,
		StartsAt:     req.StartsAt.UTC(),
		EndsAt:       req.EndsAt.UTC(),
		Capacity:     req.Capacity,
	}
	if err := h.Sessions.Create(ctx, s); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create session failed"})
	}
	return c.JSON(http.StatusCreated, toSessionResp(s))
}

// List returns upcoming sessions, soonest first.
func (h *SessionHandler) List(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sessions, err := h.Sessions.ListUpcoming(ctx, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list sessions failed"})
	}
	out := make([]sessionResp, 0, len(sessions))
	for i := range sessions {
		out = append(out, toSessionResp(&sessions[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

// Get returns a single session.
func (h *SessionHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Sessions.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return serviceError(c, service.ErrSessionNotFound)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load session failed"})
	}
	return c.JSON(http.StatusOK, toSessionResp(s))
}

// Roster returns the non-cancelled bookings for a session with holder
// emails and any recorded attendance, confirmed holders first and the
// waitlist in position order.  Staff only.
func (h *SessionHandler) Roster(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Sessions.GetByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return serviceError(c, service.ErrSessionNotFound)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load session failed"})
	}
	roster, err := h.Bookings.ListRoster(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load roster failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": id, "roster": roster})
}

type attendanceResp struct {
	ID        uint64    `json:"id"`
	BookingID uint64    `json:"booking_id"`
	UserID    uint64    `json:"user_id"`
	Status    string    `json:"status"`
	MarkedBy  uint64    `json:"marked_by"`
	MarkedAt  time.Time `json:"marked_at"`
}

// AttendanceList returns the attendance records for a session in the
// order they were marked.  Staff only.
func (h *SessionHandler) AttendanceList(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Sessions.GetByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return serviceError(c, service.ErrSessionNotFound)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load session failed"})
	}
	records, err := h.Attendance.ListBySession(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load attendance failed"})
	}
	out := make([]attendanceResp, 0, len(records))
	for _, a := range records {
		out = append(out, attendanceResp{
			ID:        a.ID,
			BookingID: a.BookingID,
			UserID:    a.UserID,
			Status:    string(a.Status),
			MarkedBy:  a.MarkedBy,
			MarkedAt:  a.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": id, "attendance": out})
}
