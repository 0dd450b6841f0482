package repository

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pqForeignKeyViolation pq.ErrorCode = "23503"
	pqUniqueViolation     pq.ErrorCode = "23505"
	pqCheckViolation      pq.ErrorCode = "23514"
)

// IsForeignKeyViolation reports whether err references a missing row.
func IsForeignKeyViolation(err error) bool {
	return hasPQCode(err, pqForeignKeyViolation)
}

// IsUniqueViolation reports whether err hit a unique constraint.
func IsUniqueViolation(err error) bool {
	return hasPQCode(err, pqUniqueViolation)
}

// IsCheckViolation reports whether err broke a CHECK constraint.
func IsCheckViolation(err error) bool {
	return hasPQCode(err, pqCheckViolation)
}

func hasPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == code
	}
	return false
}
