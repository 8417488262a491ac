package db

import (
	"errors"

	"github.com/uptrace/bun/driver/pgdriver"
)

// SQLSTATE codes used by the repositories.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeRaiseException      = "P0001"
)

func sqlState(err error) (code string, constraint string, ok bool) {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return "", "", false
	}
	return pgErr.Field('C'), pgErr.Field('n'), true
}

func IsUniqueViolation(err error) bool {
	code, _, ok := sqlState(err)
	return ok && code == codeUniqueViolation
}

// IsForeignKeyViolation reports a violated foreign key and its constraint name.
func IsForeignKeyViolation(err error) (string, bool) {
	code, constraint, ok := sqlState(err)
	if !ok || code != codeForeignKeyViolation {
		return "", false
	}
	return constraint, true
}

// IsRaisedException reports a RAISE EXCEPTION from a trigger.
func IsRaisedException(err error) bool {
	code, _, ok := sqlState(err)
	return ok && code == codeRaiseException
}
