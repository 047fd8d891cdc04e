// Package repository implements data access against MySQL.  Methods
// suffixed Tx operate inside a caller-supplied transaction; the caller
// commits or rolls back.  Missing rows surface as sql.ErrNoRows, and
// unique-key violations can be classified with IsDuplicateEntry so
// higher layers report them as conflicts rather than server errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate this into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrEmailExists is returned by user creation when the email address is
// already registered.
var ErrEmailExists = errors.New("email already exists")

// mysqlDuplicateEntry is the MySQL error number for a unique-key
// violation (ER_DUP_ENTRY).
const mysqlDuplicateEntry = 1062

// IsDuplicateEntry reports whether err is a MySQL unique-key violation.
// The unique keys on active bookings, active enrollments and attendance
// rows are the storage-layer backstop for the application-level
// duplicate checks; a violation here is an expected race, not a bug.
func IsDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
