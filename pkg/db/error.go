package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicateKey reports whether err is a unique-constraint violation.
// Gorm translates some driver errors itself; the string checks cover the
// postgres and sqlite messages that reach us untranslated.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()

	// PostgreSQL, SQLSTATE 23505.
	if strings.Contains(msg, "duplicate key value violates unique constraint") {
		return true
	}

	// SQLite.
	return strings.Contains(msg, "UNIQUE constraint failed")
}
