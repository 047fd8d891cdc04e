// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/practice-session-booking/internal/handler"
	"github.com/iliyamo/practice-session-booking/internal/middleware"
	"github.com/iliyamo/practice-session-booking/internal/model"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication and profile endpoints.
// Unauthenticated operations live under /v1/auth; protected ones under
// /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// /refresh rotates the refresh token; /refresh-access only issues a
	// new access token.
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout works without the JWT middleware so a client with an
	// expired access token can still end its session.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
	auth.PUT("/me/profile", a.UpdateProfile)
}

// RegisterSessions registers practice-session routes.  Reads are open
// to any authenticated user; creation is restricted to staff and the
// roster to the instructor side.
func RegisterSessions(e *echo.Echo, h *handler.SessionHandler, jwtSecret string) {
	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/sessions", h.List)
	auth.GET("/sessions/:id", h.Get)

	staff := e.Group("/v1", middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleInstructor, model.RoleAdmin))
	staff.POST("/sessions", h.Create)
	staff.GET("/sessions/:id/roster", h.Roster)
	staff.GET("/sessions/:id/attendance", h.AttendanceList)
}

// RegisterBookings registers the booking lifecycle routes.  The rate
// limiter guards the write paths; list stays unthrottled.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/bookings", h.ListMine)
	auth.POST("/bookings", h.Create, limiter)
	auth.DELETE("/bookings/:id", h.Cancel, limiter)

	staff := e.Group("/v1", middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleInstructor, model.RoleAdmin))
	staff.POST("/bookings/:id/confirm", h.Confirm)
	staff.POST("/bookings/:id/attendance", h.MarkAttendance)
}

// RegisterTournaments registers tournament routes: admin setup, student
// enrollment and check-in, and staff-side seeding.
func RegisterTournaments(e *echo.Echo, h *handler.TournamentHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/tournaments", h.List)
	auth.GET("/tournaments/:id", h.Get)
	auth.POST("/tournaments/:id/enroll", h.Enroll, limiter)
	auth.DELETE("/tournaments/:id/enroll", h.Unenroll, limiter)
	auth.POST("/tournaments/:id/checkin", h.Checkin, limiter)

	staff := e.Group("/v1", middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleInstructor, model.RoleAdmin))
	staff.GET("/tournaments/:id/seeding-pool", h.SeedingPool)
	staff.GET("/tournaments/:id/enrollments", h.ListEnrollments)

	admin := e.Group("/v1", middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin))
	admin.POST("/tournaments", h.CreateSemester)
	admin.POST("/users/:id/credits", h.TopUpCredits)
}
