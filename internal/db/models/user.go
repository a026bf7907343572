// Package models - user.go defines the User model for CampusFace accounts with email,
// display name, and an optional account-level face image reference.
package models

import "time"

// User represents an account in the system. FaceImageID is the account-level
// photo used as the fallback when a membership carries no per-organization
// override.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	FaceImageID  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
