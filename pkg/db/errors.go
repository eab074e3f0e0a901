package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
)

const sqlStateUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a duplicate-key failure, optionally
// on a specific constraint. Postgres errors are matched by SQLSTATE; anything
// else (sqlite in tests) falls back to the driver message.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if pg := pkgerrors.Postgres(err); pg != nil {
		return pg.Code == sqlStateUniqueViolation && (constraint == "" || pg.Constraint == constraint)
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraint == "" || strings.Contains(msg, constraint)
}
