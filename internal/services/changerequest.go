// changerequest.go implements the change request engine: a member's proposal
// to replace their biometric photo. The proposed photo lives on the image
// host from creation; its lifecycle tracks the request's, so rejection,
// replacement, and deletion of a pending request all remove the proposed
// object. Cleanup deletes are best effort: an orphaned photo is an acceptable
// residual, a blocked state transition is not.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/campusface/campusface/internal/db/models"
	"github.com/campusface/campusface/internal/db/repositories"
	"github.com/campusface/campusface/internal/images"
	"github.com/campusface/campusface/internal/safego"
	syncpkg "github.com/campusface/campusface/internal/sync"
	"github.com/campusface/campusface/internal/telemetry"
)

// ChangeRequestService manages the change request lifecycle
type ChangeRequestService struct {
	changes   changeStore
	members   memberStore
	users     userStore
	host      images.Host
	publisher syncpkg.Publisher
	logger    *slog.Logger
	urlTTL    time.Duration

	now func() time.Time
}

// NewChangeRequestService creates a new change request engine
func NewChangeRequestService(changes changeStore, members memberStore, users userStore, host images.Host, publisher syncpkg.Publisher, logger *slog.Logger, urlTTL time.Duration) *ChangeRequestService {
	return &ChangeRequestService{
		changes:   changes,
		members:   members,
		users:     users,
		host:      host,
		publisher: publisher,
		logger:    logger,
		urlTTL:    urlTTL,
		now:       time.Now,
	}
}

// newImageKey generates the host object name for an uploaded photo
func newImageKey() string {
	return "faces/" + uuid.New().String() + ".jpg"
}

// processAndUpload normalizes the raw upload and stores it, returning the
// host key. Decode failures map to ErrInvalidInput, host failures to
// ErrUpstream.
func (s *ChangeRequestService) processAndUpload(ctx context.Context, raw []byte) (string, error) {
	processed, err := images.NormalizePhoto(raw)
	if err != nil {
		if errors.Is(err, images.ErrInvalidImage) {
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	key := newImageKey()
	if err := s.host.Upload(ctx, key, processed); err != nil {
		return "", fmt.Errorf("%w: image upload: %v", ErrUpstream, err)
	}
	return key, nil
}

// deleteImage removes a proposed photo from the host, logging failures
// instead of propagating them
func (s *ChangeRequestService) deleteImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.host.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete proposed face image", "image_id", key, "error", err)
	}
}

// Create files a new change request for an active member, uploading the
// proposed photo first so the stored request always references a live object.
func (s *ChangeRequestService) Create(ctx context.Context, userID, orgID string, imageData []byte) (*models.ChangeRequest, error) {
	member, err := s.members.GetByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up membership: %w", err)
	}
	if member == nil {
		return nil, ErrNotMember
	}
	if member.Status != models.MemberActive {
		return nil, ErrMemberInactive
	}

	key, err := s.processAndUpload(ctx, imageData)
	if err != nil {
		return nil, err
	}

	req := &models.ChangeRequest{
		ID:             uuid.New().String(),
		UserID:         userID,
		OrganizationID: orgID,
		NewFaceImageID: key,
		Status:         models.RequestPending,
		RequestedAt:    s.now(),
	}
	if err := s.changes.Create(ctx, req); err != nil {
		// Lost the duplicate-pending race; the uploaded photo has no
		// owner now, clean it up.
		s.deleteImage(ctx, key)
		if repositories.IsUniqueViolation(err) {
			return nil, ErrDuplicatePending
		}
		return nil, fmt.Errorf("failed to store change request: %w", err)
	}

	telemetry.ChangeRequestTransitionsTotal.WithLabelValues("created").Inc()
	return req, nil
}

// Review dispatches a PENDING request to approval or rejection. The reviewer
// must hold an ACTIVE ADMIN membership in the request's organization.
func (s *ChangeRequestService) Review(ctx context.Context, requestID, adminUserID string, approved bool) error {
	req, err := s.changes.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to look up change request: %w", err)
	}
	if req == nil {
		return ErrNotFound
	}
	if req.Status != models.RequestPending {
		return ErrAlreadyProcessed
	}

	admin, err := s.members.GetByUserAndOrg(ctx, adminUserID, req.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to look up reviewer membership: %w", err)
	}
	if admin == nil || admin.Role != models.RoleAdmin || admin.Status != models.MemberActive {
		return ErrForbidden
	}

	if approved {
		return s.approve(ctx, req)
	}
	return s.reject(ctx, req)
}

// approve copies the proposed photo onto the membership and notifies the
// directory
func (s *ChangeRequestService) approve(ctx context.Context, req *models.ChangeRequest) error {
	member, err := s.members.GetByUserAndOrg(ctx, req.UserID, req.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to look up member: %w", err)
	}
	if member == nil {
		return fmt.Errorf("%w: member for request %s", ErrNotFound, req.ID)
	}

	if err := s.members.UpdateFaceImageID(ctx, member.ID, req.NewFaceImageID); err != nil {
		return fmt.Errorf("failed to update member photo: %w", err)
	}
	if err := s.changes.UpdateStatus(ctx, req.ID, models.RequestApproved); err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}

	telemetry.ChangeRequestTransitionsTotal.WithLabelValues("approved").Inc()

	event := syncpkg.MemberSyncEvent{
		EventType:      syncpkg.EventPhotoUpdated,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		MemberID:       member.ID,
		Role:           string(member.Role),
		Status:         string(member.Status),
		FaceImageID:    req.NewFaceImageID,
	}
	safego.Go("change-request-sync", func() {
		if err := s.publisher.PublishMemberSync(context.Background(), event); err != nil {
			s.logger.Error("member sync notification failed", "member_id", event.MemberID, "error", err)
		}
	})

	return nil
}

// reject deletes the proposed photo and marks the request DENIED
func (s *ChangeRequestService) reject(ctx context.Context, req *models.ChangeRequest) error {
	s.deleteImage(ctx, req.NewFaceImageID)

	if err := s.changes.UpdateStatus(ctx, req.ID, models.RequestDenied); err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	telemetry.ChangeRequestTransitionsTotal.WithLabelValues("denied").Inc()
	return nil
}

// Update replaces the proposed photo on a still-PENDING request. The
// superseded photo is deleted first so the host never accumulates abandoned
// proposals.
func (s *ChangeRequestService) Update(ctx context.Context, requestID string, imageData []byte) (*models.ChangeRequest, error) {
	req, err := s.changes.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up change request: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}
	if req.Status != models.RequestPending {
		return nil, ErrAlreadyProcessed
	}

	s.deleteImage(ctx, req.NewFaceImageID)

	key, err := s.processAndUpload(ctx, imageData)
	if err != nil {
		return nil, err
	}

	if err := s.changes.UpdateImage(ctx, requestID, key); err != nil {
		s.deleteImage(ctx, key)
		return nil, fmt.Errorf("failed to update request image: %w", err)
	}

	req.NewFaceImageID = key
	return req, nil
}

// Delete removes a request. The proposed photo is cleaned up only while the
// request is PENDING; approved requests' photos belong to the membership.
func (s *ChangeRequestService) Delete(ctx context.Context, requestID string) error {
	req, err := s.changes.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to look up change request: %w", err)
	}
	if req == nil {
		return ErrNotFound
	}

	if req.Status == models.RequestPending {
		s.deleteImage(ctx, req.NewFaceImageID)
	}
	return s.changes.Delete(ctx, requestID)
}

// ListPending lists an organization's PENDING requests with photo URLs
// resolved. Rows missing their user or member record are dropped.
func (s *ChangeRequestService) ListPending(ctx context.Context, orgID string) ([]*ChangeRequestDTO, error) {
	reqs, err := s.changes.FindByOrgAndStatus(ctx, orgID, models.RequestPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}

	dtos := make([]*ChangeRequestDTO, 0, len(reqs))
	for _, req := range reqs {
		user, err := s.users.GetUserByID(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		member, err := s.members.GetByUserAndOrg(ctx, req.UserID, req.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up member: %w", err)
		}
		if user == nil || member == nil {
			continue
		}
		dtos = append(dtos, s.toDTO(ctx, req, user, member))
	}
	return dtos, nil
}

// ListUserRequests lists a user's change requests across organizations,
// newest first. A vanished user yields an empty list.
func (s *ChangeRequestService) ListUserRequests(ctx context.Context, userID string) ([]*ChangeRequestDTO, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return []*ChangeRequestDTO{}, nil
	}

	reqs, err := s.changes.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user requests: %w", err)
	}

	dtos := make([]*ChangeRequestDTO, 0, len(reqs))
	for _, req := range reqs {
		member, err := s.members.GetByUserAndOrg(ctx, userID, req.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up member: %w", err)
		}
		dtos = append(dtos, s.toDTO(ctx, req, user, member))
	}
	return dtos, nil
}

// GetByID retrieves one request with photo URLs resolved. Unlike the list
// projections, a missing user record fails outright.
func (s *ChangeRequestService) GetByID(ctx context.Context, requestID string) (*ChangeRequestDTO, error) {
	req, err := s.changes.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up change request: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}

	user, err := s.users.GetUserByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, req.UserID)
	}

	member, err := s.members.GetByUserAndOrg(ctx, req.UserID, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up member: %w", err)
	}
	return s.toDTO(ctx, req, user, member), nil
}

// toDTO resolves the member's current photo (membership override falling
// back to the account photo) and the proposed photo into signed URLs.
// member may be nil.
func (s *ChangeRequestService) toDTO(ctx context.Context, req *models.ChangeRequest, user *models.User, member *models.OrganizationMember) *ChangeRequestDTO {
	dto := &ChangeRequestDTO{
		ID:             req.ID,
		OrganizationID: req.OrganizationID,
		Status:         req.Status,
		RequestedAt:    req.RequestedAt,
		UserFullName:   user.FullName,
	}

	currentFaceID := user.FaceImageID
	if member != nil && member.FaceImageID != nil && *member.FaceImageID != "" {
		currentFaceID = member.FaceImageID
	}
	if currentFaceID != nil && *currentFaceID != "" {
		if url, err := s.host.SignedURL(ctx, *currentFaceID, s.urlTTL); err != nil {
			s.logger.Warn("failed to sign face image URL", "image_id", *currentFaceID, "error", err)
		} else {
			dto.CurrentFaceURL = &url
		}
	}

	if req.NewFaceImageID != "" {
		if url, err := s.host.SignedURL(ctx, req.NewFaceImageID, s.urlTTL); err != nil {
			s.logger.Warn("failed to sign face image URL", "image_id", req.NewFaceImageID, "error", err)
		} else {
			dto.NewFaceURL = &url
		}
	}

	return dto
}
