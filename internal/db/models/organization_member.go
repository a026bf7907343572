// Package models - organization_member.go defines models for user-to-organization
// membership, the role and status enums, and the enriched view joining user details.
package models

import "time"

// Role is a member's role within an organization
type Role string

// Membership roles. VALIDATOR and ADMIN may consume authorization codes;
// only ADMIN may review face change requests.
const (
	RoleMember    Role = "MEMBER"
	RoleValidator Role = "VALIDATOR"
	RoleAdmin     Role = "ADMIN"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleValidator, RoleAdmin:
		return true
	}
	return false
}

// MemberStatus is the active/inactive state of a membership
type MemberStatus string

const (
	MemberActive    MemberStatus = "ACTIVE"
	MemberInactive  MemberStatus = "INACTIVE"
	MemberSuspended MemberStatus = "SUSPENDED"
)

// OrganizationMember represents a user's membership in an organization.
// FaceImageID is the per-organization photo override; when nil the user's
// account-level photo applies.
type OrganizationMember struct {
	ID             string
	OrganizationID string
	UserID         string
	Role           Role
	Status         MemberStatus
	FaceImageID    *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrganizationMemberWithUser includes user details for display
type OrganizationMemberWithUser struct {
	OrganizationMember
	UserFullName string
	UserEmail    string
}
