package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrStaleVersion is returned when a compare-and-swap update matched no row.
	ErrStaleVersion = errors.New("stale version")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrHasFinancialHistory is returned when a delete is refused because payments exist.
	ErrHasFinancialHistory = errors.New("entity has financial history")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
