package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/practice-session-booking/internal/model"
	"github.com/iliyamo/practice-session-booking/internal/utils"
)

// UserRepo provides access to the users table, including the credit
// balance that tournament enrollment draws on.  Balance mutations are
// single conditional UPDATE statements executed server-side; the
// repository never reads a balance and writes a computed value back.
type UserRepo struct{ db *sql.DB }

// NewUserRepo returns a UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, password_hash, role, credit_balance, birth_date, license_no, is_active, created_at, updated_at`

// Create inserts a user with a bcrypt-hashed password and returns its
// ID.  A duplicate email yields ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role) VALUES (?, ?, ?)`,
		email, hash, role)
	if err != nil {
		if IsDuplicateEntry(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, email)
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id)
	return scanUser(row)
}

// GetByIDTx fetches a user inside a transaction without locking the
// row.  Used for prerequisite checks before any lock is taken.
func (r *UserRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.User, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id)
	return scanUser(row)
}

// DeductCreditsTx subtracts cost from the user's balance with a single
// guarded update.  When the guard (credit_balance >= cost) matches no
// row the balance was insufficient (possibly drained by a concurrent
// deduction) and the method reports that by returning sql.ErrNoRows;
// the caller must abort its transaction.
func (r *UserRepo) DeductCreditsTx(ctx context.Context, tx *sql.Tx, userID uint64, cost uint32) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET credit_balance = credit_balance - ? WHERE id = ? AND credit_balance >= ?`,
		cost, userID, cost)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RefundCreditsTx adds amount to the user's balance atomically and
// returns the resulting balance, read inside the same transaction.
func (r *UserRepo) RefundCreditsTx(ctx context.Context, tx *sql.Tx, userID uint64, amount uint32) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET credit_balance = credit_balance + ? WHERE id = ?`,
		amount, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, sql.ErrNoRows
	}
	return r.CreditBalanceTx(ctx, tx, userID)
}

// AddCredits tops up a user's balance outside any transaction and
// returns the resulting balance.  Used by the admin top-up endpoint.
func (r *UserRepo) AddCredits(ctx context.Context, userID uint64, amount uint32) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET credit_balance = credit_balance + ? WHERE id = ?`,
		amount, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, sql.ErrNoRows
	}
	var balance int64
	err = r.db.QueryRowContext(ctx,
		`SELECT credit_balance FROM users WHERE id = ?`, userID).Scan(&balance)
	return balance, err
}

// CreditBalanceTx reads the user's current balance inside the
// transaction.
func (r *UserRepo) CreditBalanceTx(ctx context.Context, tx *sql.Tx, userID uint64) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx,
		`SELECT credit_balance FROM users WHERE id = ?`, userID).Scan(&balance)
	return balance, err
}

// UpdateProfile sets the birth date and license number used for
// tournament prerequisites.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID uint64, birthDate *time.Time, licenseNo *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET birth_date = ?, license_no = ? WHERE id = ?`,
		birthDate, licenseNo, userID)
	return err
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u         model.User
		birthDate sql.NullTime
		licenseNo sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreditBalance,
		&birthDate, &licenseNo, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if birthDate.Valid {
		bd := birthDate.Time
		u.BirthDate = &bd
	}
	if licenseNo.Valid {
		ln := licenseNo.String
		u.LicenseNo = &ln
	}
	return &u, nil
}
