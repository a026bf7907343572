// errors.go defines the sentinel failures the engines raise. Handlers map
// these onto HTTP status codes; everything else surfaces as a 500.
package services

import "errors"

var (
	// ErrNotFound is returned when a referenced entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyProcessed is returned when a state transition is attempted
	// on a request that is no longer PENDING
	ErrAlreadyProcessed = errors.New("request already processed")

	// ErrDuplicatePending is returned when a second PENDING request for the
	// same (user, organization) would be created
	ErrDuplicatePending = errors.New("a pending request already exists")

	// ErrAlreadyMember is returned when a user applies to join an
	// organization they already belong to
	ErrAlreadyMember = errors.New("user is already a member of this organization")

	// ErrNotMember is returned when an operation requires a membership the
	// caller does not have
	ErrNotMember = errors.New("user is not a member of this organization")

	// ErrMemberInactive is returned when the caller's membership exists but
	// is not ACTIVE
	ErrMemberInactive = errors.New("membership is not active")

	// ErrForbidden is returned when the caller's role does not permit the
	// operation
	ErrForbidden = errors.New("insufficient role for this operation")

	// ErrInvalidInput is returned for malformed or out-of-range input
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstream is returned when the image host or another collaborator
	// fails mid-operation
	ErrUpstream = errors.New("upstream collaborator failed")
)
