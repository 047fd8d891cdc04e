package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/practice-session-booking/internal/config"
	"github.com/iliyamo/practice-session-booking/internal/database"
	"github.com/iliyamo/practice-session-booking/internal/handler"
	"github.com/iliyamo/practice-session-booking/internal/middleware"
	"github.com/iliyamo/practice-session-booking/internal/queue"
	"github.com/iliyamo/practice-session-booking/internal/repository"
	"github.com/iliyamo/practice-session-booking/internal/router"
	"github.com/iliyamo/practice-session-booking/internal/service"
)

func main() {
	// Load .env when present; real deployments set the environment
	// directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	sessions := repository.NewSessionRepo(db)
	bookings := repository.NewBookingRepo(db)
	attendance := repository.NewAttendanceRepo(db)
	enrollments := repository.NewEnrollmentRepo(db)

	store := repository.NewLedgerStore(db, sessions, bookings, attendance, enrollments, users)
	engine := service.NewBookingEngine(store, service.BookingPolicy{
		BookingLead: cfg.BookingLead(),
		CancelLead:  cfg.CancelLead(),
	}, nil)
	ledger := service.NewEnrollmentLedger(store, service.EnrollmentPolicy{
		CheckinWindow: cfg.CheckinWindow(),
	}, nil)

	rdb := config.NewRedisClient()
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	// Background consumer writes booking events to logs/booking.log and
	// reconnects on its own; a broker outage never blocks the API.
	go func() {
		if err := queue.StartEventConsumer(); err != nil {
			log.Printf("event consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterSessions(e, handler.NewSessionHandler(sessions, bookings, attendance), cfg.JWTSecret)
	router.RegisterBookings(e, handler.NewBookingHandler(engine, bookings, sessions), cfg.JWTSecret, limiter)
	router.RegisterTournaments(e, handler.NewTournamentHandler(ledger, enrollments, users), cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
