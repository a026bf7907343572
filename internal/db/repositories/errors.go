// Package repositories implements database access for CampusFace entities.
// Conventions: lookups return (nil, nil) when no row matches; identifiers are
// assigned by the repository on create (uuid strings); callers pass
// context.Context for cancellation.
package repositories

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint breach.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation. The services use this to map races on the partial unique
// indexes (duplicate pending request, duplicate valid code) onto their
// domain errors instead of surfacing a driver error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
