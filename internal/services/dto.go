// dto.go defines the response shapes the engines project store records into.
// Raw image-host identifiers never leave the service layer; they are resolved
// into time-limited signed URLs here.
package services

import (
	"time"

	"github.com/campusface/campusface/internal/db/models"
)

// UserDTO is the public projection of a user account
type UserDTO struct {
	ID           string  `json:"id"`
	FullName     string  `json:"full_name"`
	Email        string  `json:"email"`
	FaceImageURL *string `json:"face_image_url,omitempty"`
}

// MemberDTO is the public projection of a membership, carried in validation
// responses so gate hardware can display who was authorized
type MemberDTO struct {
	ID       string              `json:"id"`
	Role     models.Role         `json:"role"`
	Status   models.MemberStatus `json:"status"`
	JoinedAt time.Time           `json:"joined_at"`
	User     UserDTO             `json:"user"`
}

// GeneratedCode is the response to code generation. The value is the
// capability; the owner identity is never included.
type GeneratedCode struct {
	Code           string    `json:"code"`
	ExpirationTime time.Time `json:"expiration_time"`
}

// ValidationResult is the outcome of a code validation. Invalid, expired,
// and owner-missing are values, not errors; only authorization failures of
// the validator are raised.
type ValidationResult struct {
	Valid   bool       `json:"valid"`
	Message string     `json:"message"`
	Member  *MemberDTO `json:"member,omitempty"`
}

// EntryRequestDTO is the public projection of an entry request
type EntryRequestDTO struct {
	ID          string               `json:"id"`
	HubCode     string               `json:"hub_code"`
	Role        models.Role          `json:"role"`
	Status      models.RequestStatus `json:"status"`
	RequestedAt time.Time            `json:"requested_at"`
	User        UserDTO              `json:"user"`
}

// ChangeRequestDTO is the public projection of a change request, with the
// member's current and proposed photos resolved into display URLs
type ChangeRequestDTO struct {
	ID             string               `json:"id"`
	OrganizationID string               `json:"organization_id"`
	Status         models.RequestStatus `json:"status"`
	RequestedAt    time.Time            `json:"requested_at"`
	UserFullName   string               `json:"user_full_name"`
	CurrentFaceURL *string              `json:"current_face_url,omitempty"`
	NewFaceURL     *string              `json:"new_face_url,omitempty"`
}

// AuthCodeDTO is the administrative projection of a stored code
type AuthCodeDTO struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	ExpirationTime time.Time `json:"expiration_time"`
	Valid          bool      `json:"valid"`
}

func toAuthCodeDTO(code *models.AuthCode) *AuthCodeDTO {
	return &AuthCodeDTO{
		ID:             code.ID,
		Code:           code.Code,
		UserID:         code.UserID,
		OrganizationID: code.OrganizationID,
		ExpirationTime: code.ExpirationTime,
		Valid:          code.Valid,
	}
}
