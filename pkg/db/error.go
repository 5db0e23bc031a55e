package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgNumericOverflow      = "22003"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) || HasPGCode(err, pgUniqueViolation) {
		return true
	}

	msg := err.Error()
	// PostgreSQL via a driver that does not surface *pgconn.PgError
	if strings.Contains(msg, "duplicate key value violates unique constraint") {
		return true
	}
	// MySQL (error code 1062)
	if strings.Contains(msg, "Error 1062") {
		return true
	}
	// SQLite (error code 2067)
	return strings.Contains(msg, "UNIQUE constraint failed")
}

// IsNumericOverflow reports whether a write exceeded a numeric column's
// precision.
func IsNumericOverflow(err error) bool {
	if err == nil {
		return false
	}
	if HasPGCode(err, pgNumericOverflow) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "numeric field overflow") || strings.Contains(msg, "Out of range value")
}

func IsLockTimeout(err error) bool {
	return HasPGCode(err, pgLockNotAvailable)
}

func IsSerializationFailure(err error) bool {
	return HasPGCode(err, pgSerializationFailure)
}

// HasPGCode reports whether err wraps a postgres error with the given SQLSTATE.
func HasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
