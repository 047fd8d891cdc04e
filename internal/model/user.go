package model

import "time"

// User represents an application user record as stored in the `users`
// table.  CreditBalance is the mutable credit counter consumed by
// tournament enrollment; it is never mutated with a read-modify-write
// in application code; all deductions and refunds are single
// conditional UPDATE statements, so the balance can reach zero but
// never go negative.
//
// Fields:
//  ID            – primary key identifier of the user.
//  Email         – unique email address.
//  PasswordHash  – bcrypt hashed password.
//  Role          – role name (STUDENT, INSTRUCTOR or ADMIN).
//  CreditBalance – spendable tournament credits, always >= 0.
//  BirthDate     – used for tournament age prerequisites (nullable).
//  LicenseNo     – sports license number (nullable).
//  IsActive      – whether the account is active.
type User struct {
	ID            uint64     // users.id
	Email         string     // users.email
	PasswordHash  string     // users.password_hash
	Role          string     // users.role
	CreditBalance int64      // users.credit_balance
	BirthDate     *time.Time // users.birth_date (nullable)
	LicenseNo     *string    // users.license_no (nullable)
	IsActive      bool       // users.is_active
	CreatedAt     time.Time  // users.created_at
	UpdatedAt     time.Time  // users.updated_at
}

// Role names accepted in the JWT "role" claim.
const (
	RoleStudent    = "STUDENT"
	RoleInstructor = "INSTRUCTOR"
	RoleAdmin      = "ADMIN"
)

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token value is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
