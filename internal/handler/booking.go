package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/practice-session-booking/internal/model"
	"github.com/iliyamo/practice-session-booking/internal/queue"
	"github.com/iliyamo/practice-session-booking/internal/repository"
	"github.com/iliyamo/practice-session-booking/internal/service"
)

// BookingHandler serves the booking lifecycle: create, cancel, confirm
// and attendance marking.  All state transitions run through the
// engine; the handler only translates HTTP to engine calls and
// publishes events after a successful commit.
type BookingHandler struct {
	Engine   *service.BookingEngine
	Bookings *repository.BookingRepo
	Sessions *repository.SessionRepo
}

func NewBookingHandler(e *service.BookingEngine, b *repository.BookingRepo, s *repository.SessionRepo) *BookingHandler {
	if e == nil || b == nil || s == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Engine: e, Bookings: b, Sessions: s}
}

type createBookingReq struct {
	SessionID uint64 `json:"session_id"`
	Notes     string `json:"notes"`
}

type bookingResp struct {
	ID               uint64  `json:"id"`
	SessionID        uint64  `json:"session_id"`
	UserID           uint64  `json:"user_id"`
	Status           string  `json:"status"`
	WaitlistPosition *uint32 `json:"waitlist_position,omitempty"`
}

func toBookingResp(b *model.Booking) bookingResp {
	return bookingResp{
		ID:               b.ID,
		SessionID:        b.SessionID,
		UserID:           b.UserID,
		Status:           string(b.Status),
		WaitlistPosition: b.WaitlistPosition,
	}
}

// Create books a slot on a session for the calling student.  The
// response reports whether the booking was confirmed immediately or
// placed on the waitlist, and at which position.
func (h *BookingHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createBookingReq
	if err := c.Bind(&req); err != nil || req.SessionID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	b, err := h.Engine.Create(ctx, uid, req.SessionID, req.Notes)
	if err != nil {
		return serviceError(c, err)
	}
	h.publishBookingEvent(ctx, b)
	return c.JSON(http.StatusCreated, toBookingResp(b))
}

// Cancel cancels a booking.  Students may cancel their own bookings up
// to the cancellation deadline; staff may cancel any booking at any
// time.  When a confirmed booking is cancelled the response includes
// the waitlisted booking promoted into the freed slot, if any.
func (h *BookingHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Engine.Cancel(ctx, id, uid, getRole(c))
	if err != nil {
		return serviceError(c, err)
	}
	resp := echo.Map{"booking": toBookingResp(res.Booking)}
	if res.Promoted != nil {
		resp["promoted"] = toBookingResp(res.Promoted)
		h.publishPromotion(ctx, res.Promoted)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListMine returns the caller's bookings with session details, newest
// first.
func (h *BookingHandler) ListMine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Bookings.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list bookings failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": items})
}

// Confirm flips a pending or waitlisted booking to confirmed, subject
// to a capacity re-check.  Staff only.
func (h *BookingHandler) Confirm(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	b, err := h.Engine.Confirm(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}
	h.publishBookingEvent(ctx, b)
	return c.JSON(http.StatusOK, toBookingResp(b))
}

type attendanceReq struct {
	Status string `json:"status"` // PRESENT | ABSENT | LATE | EXCUSED
}

// MarkAttendance records attendance for a confirmed booking, once.
// Staff only.
func (h *BookingHandler) MarkAttendance(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req attendanceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	status := model.AttendanceStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	switch status {
	case model.AttendancePresent, model.AttendanceAbsent, model.AttendanceLate, model.AttendanceExcused:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be PRESENT, ABSENT, LATE or EXCUSED"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	a, err := h.Engine.RecordAttendance(ctx, id, status, uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"booking_id": a.BookingID,
		"user_id":    a.UserID,
		"session_id": a.SessionID,
		"status":     string(a.Status),
		"marked_by":  a.MarkedBy,
	})
}

// publishBookingEvent emits a confirmed or waitlisted event for a fresh
// booking.  Delivery failures are logged by the publisher and ignored;
// the booking already committed.
func (h *BookingHandler) publishBookingEvent(ctx context.Context, b *model.Booking) {
	kind := queue.KindBookingConfirmed
	if b.Status == model.BookingWaitlisted {
		kind = queue.KindBookingWaitlisted
	}
	_ = queue.Publish(ctx, h.bookingEvent(ctx, kind, b))
}

func (h *BookingHandler) publishPromotion(ctx context.Context, b *model.Booking) {
	_ = queue.Publish(ctx, h.bookingEvent(ctx, queue.KindBookingPromoted, b))
}

func (h *BookingHandler) bookingEvent(ctx context.Context, kind string, b *model.Booking) queue.BookingEvent {
	ev := queue.BookingEvent{
		Kind:             kind,
		BookingID:        b.ID,
		UserID:           b.UserID,
		SessionID:        b.SessionID,
		WaitlistPosition: b.WaitlistPosition,
		OccurredAt:       time.Now().UTC().Format(time.RFC3339),
	}
	if s, err := h.Sessions.GetByID(ctx, b.SessionID); err == nil {
		ev.SessionTitle = s.Title
		ev.StartsAt = s.StartsAt.UTC().Format(time.RFC3339)
	}
	return ev
}
