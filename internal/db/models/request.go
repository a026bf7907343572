// request.go defines the EntryRequest and ChangeRequest models and the shared
// request status enum. Both request kinds are proposals: approval mutates or
// creates the durable OrganizationMember record; APPROVED and DENIED are
// terminal.
package models

import "time"

// RequestStatus is the lifecycle state of an entry or change request
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestDenied   RequestStatus = "DENIED"
)

// EntryRequest is a user's application to join an organization with a
// requested role. At most one PENDING request may exist per
// (user, organization); the store enforces this with a partial unique index.
type EntryRequest struct {
	ID             string        `db:"id"`
	UserID         string        `db:"user_id"`
	OrganizationID string        `db:"organization_id"`
	HubCode        string        `db:"hub_code"`
	Role           Role          `db:"role"`
	Status         RequestStatus `db:"status"`
	RequestedAt    time.Time     `db:"requested_at"`
	UpdatedAt      *time.Time    `db:"updated_at"`
}

// ChangeRequest is a member's application to replace their biometric photo.
// NewFaceImageID references an image-host object whose lifecycle must track
// the request's: rejected or superseded proposals delete the image.
type ChangeRequest struct {
	ID             string        `db:"id"`
	UserID         string        `db:"user_id"`
	OrganizationID string        `db:"organization_id"`
	NewFaceImageID string        `db:"new_face_image_id"`
	Status         RequestStatus `db:"status"`
	RequestedAt    time.Time     `db:"requested_at"`
	UpdatedAt      *time.Time    `db:"updated_at"`
}
