// auth_code.go defines the AuthCode model: a short-lived, single-use numeric
// credential proving organization membership at a physical entry point.
package models

import "time"

// AuthCode is an authorization code. Code is a fixed-width 6-digit string;
// the value is the capability, so responses to the code owner never include
// the owner identity alongside it.
//
// Lifecycle: created valid, then invalidated exactly once — by consumption,
// by lazy expiry detection at validation time, by a newer code for the same
// owner, or by manual administrative action. No code returns to valid
// through the normal paths.
type AuthCode struct {
	ID             string
	Code           string
	UserID         string
	OrganizationID string
	ExpirationTime time.Time
	Valid          bool
	CreatedAt      time.Time
}

// Expired reports whether the code's expiration time has passed at now
func (c *AuthCode) Expired(now time.Time) bool {
	return now.After(c.ExpirationTime)
}
