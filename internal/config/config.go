// Package config loads application configuration from environment
// variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable.  Booking and check-in policy
// knobs default to the documented platform policy (book >= 24h ahead,
// cancel >= 12h ahead, check-in opens 15 minutes before start).
type Config struct {
	Env              string // application environment (e.g. "dev", "prod")
	Port             string // HTTP port to listen on
	DBUser           string // database username
	DBPass           string // database password (optional)
	DBHost           string // database host address
	DBPort           string // database port number
	DBName           string // database name
	JWTSecret        string // secret used to sign JWTs
	AccessTTLMin     int    // access token time-to-live in minutes
	RefreshTTLDays   int    // refresh token time-to-live in days
	BcryptCost       int    // bcrypt cost for password hashing
	BookingLeadHours int    // minimum hours before session start to book
	CancelLeadHours  int    // minimum hours before session start to cancel
	CheckinWindowMin int    // minutes before tournament start that check-in opens
}

// Load reads configuration from the environment.  Required variables
// are enforced by must(); missing values exit with a fatal log message.
func Load() Config {
	return Config{
		Env:              must("APP_ENV"),
		Port:             must("APP_PORT"),
		DBUser:           must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"),
		DBHost:           must("DB_HOST"),
		DBPort:           must("DB_PORT"),
		DBName:           must("DB_NAME"),
		JWTSecret:        must("JWT_SECRET"),
		AccessTTLMin:     mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays:   mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:       mustInt("BCRYPT_COST"),
		BookingLeadHours: envInt("BOOKING_LEAD_HOURS", 24),
		CancelLeadHours:  envInt("CANCEL_LEAD_HOURS", 12),
		CheckinWindowMin: envInt("CHECKIN_WINDOW_MIN", 15),
	}
}

// BookingLead returns the booking lead time as a duration.
func (c Config) BookingLead() time.Duration {
	return time.Duration(c.BookingLeadHours) * time.Hour
}

// CancelLead returns the cancellation lead time as a duration.
func (c Config) CancelLead() time.Duration {
	return time.Duration(c.CancelLeadHours) * time.Hour
}

// CheckinWindow returns the check-in window as a duration.
func (c Config) CheckinWindow() time.Duration {
	return time.Duration(c.CheckinWindowMin) * time.Minute
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the value to an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
