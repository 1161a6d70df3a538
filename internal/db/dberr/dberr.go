// Package dberr classifies driver-level database errors shared by the
// controllers.
package dberr

import (
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const (
	// mysqlDuplicateEntry is ER_DUP_ENTRY.
	mysqlDuplicateEntry = 1062
	// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
	pgUniqueViolation = "23505"
)

// IsUniqueViolation reports whether err is a uniqueness-constraint violation.
// Used to surface duplicate names and duplicate association pairs as
// conflicts rather than internal errors.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	// sqlite (tests) has no typed driver error in this stack
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
