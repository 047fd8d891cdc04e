// Package handler defines the HTTP handlers.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/practice-session-booking/internal/service"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// getRole extracts the role claim from echo.Context.
func getRole(c echo.Context) string {
	if r, ok := c.Get("role").(string); ok {
		return r
	}
	return ""
}

// pathID parses the named path parameter as an unsigned id.
func pathID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

// serviceError maps service sentinels to HTTP responses.  Not-found
// sentinels become 404, authorization failures 403, rule violations
// 422, and conflicts that arise from concurrent access 409.  Anything
// unrecognized is a 500 with a generic body.
func serviceError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrBookingNotFound),
		errors.Is(err, service.ErrTournamentNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrNotEnrolled):
		status, msg = http.StatusNotFound, err.Error()

	case errors.Is(err, service.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()

	case errors.Is(err, service.ErrBookingClosed),
		errors.Is(err, service.ErrCancelClosed),
		errors.Is(err, service.ErrSessionStarted),
		errors.Is(err, service.ErrTournamentClosed),
		errors.Is(err, service.ErrMissingPrerequisite),
		errors.Is(err, service.ErrCheckinNotOpen),
		errors.Is(err, service.ErrCheckinClosed),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrPoolTooSmall):
		status, msg = http.StatusUnprocessableEntity, err.Error()

	case errors.Is(err, service.ErrAlreadyBooked),
		errors.Is(err, service.ErrAlreadyCancelled),
		errors.Is(err, service.ErrSessionFull),
		errors.Is(err, service.ErrAlreadyEnrolled),
		errors.Is(err, service.ErrTournamentFull),
		errors.Is(err, service.ErrInsufficientCredits),
		errors.Is(err, service.ErrAttendanceRecorded):
		status, msg = http.StatusConflict, err.Error()
	}

	return c.JSON(status, echo.Map{"error": msg})
}
