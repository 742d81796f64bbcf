package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/quotedesk-backend/pkg/errors"
)

const (
	sqlStateUniqueViolation = "23505"
	sqliteUniquePrefix      = "UNIQUE constraint failed: "
)

// IsUniqueViolation reports whether err is a unique constraint failure on one
// of names. Postgres errors match on constraint name and SQLite errors on
// "table.column". No names, or an empty name, matches any unique failure.
func IsUniqueViolation(err error, names ...string) bool {
	if err == nil {
		return false
	}
	if failure, ok := pkgerrors.DBFailureOf(err); ok {
		return failure.SQLState == sqlStateUniqueViolation && matchesAny(failure.Constraint, names)
	}
	_, columns, ok := strings.Cut(err.Error(), sqliteUniquePrefix)
	if !ok {
		return false
	}
	for _, column := range strings.Split(columns, ", ") {
		if matchesAny(strings.TrimSpace(column), names) {
			return true
		}
	}
	return false
}

func matchesAny(got string, names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if name == "" || name == got {
			return true
		}
	}
	return false
}
