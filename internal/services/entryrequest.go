// entryrequest.go implements the entry request engine: a user's application
// to join an organization with a requested role. PENDING requests can be
// edited or withdrawn; APPROVED and DENIED are terminal. Approval materializes
// the durable membership, registers the user in the organization's role
// directory, and flips the request status in one transaction, then notifies
// the access-control directory asynchronously.
package services

import (
	"context"
	"database/sql"
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

// EntryRequestService manages the entry request lifecycle
type EntryRequestService struct {
	db        *sql.DB
	entries   entryStore
	members   memberStore
	orgs      orgStore
	users     userStore
	host      images.Host
	publisher syncpkg.Publisher
	logger    *slog.Logger
	urlTTL    time.Duration

	now func() time.Time
}

// NewEntryRequestService creates a new entry request engine
func NewEntryRequestService(db *sql.DB, entries entryStore, members memberStore, orgs orgStore, users userStore, host images.Host, publisher syncpkg.Publisher, logger *slog.Logger, urlTTL time.Duration) *EntryRequestService {
	return &EntryRequestService{
		db:        db,
		entries:   entries,
		members:   members,
		orgs:      orgs,
		users:     users,
		host:      host,
		publisher: publisher,
		logger:    logger,
		urlTTL:    urlTTL,
		now:       time.Now,
	}
}

// Create files a new entry request against the organization identified by
// hubCode. Existing members and users with a pending request are rejected.
func (s *EntryRequestService) Create(ctx context.Context, userID, hubCode string, role models.Role) (*EntryRequestDTO, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	org, err := s.orgs.GetByHubCode(ctx, hubCode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hub code: %w", err)
	}
	if org == nil {
		return nil, fmt.Errorf("%w: organization with hub code %s", ErrNotFound, hubCode)
	}

	existing, err := s.members.GetByUserAndOrg(ctx, userID, org.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up membership: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyMember
	}

	req := &models.EntryRequest{
		ID:             uuid.New().String(),
		UserID:         userID,
		OrganizationID: org.ID,
		HubCode:        org.HubCode,
		Role:           role,
		Status:         models.RequestPending,
		RequestedAt:    s.now(),
	}
	if err := s.entries.Create(ctx, req); err != nil {
		// The partial unique index rejects a second PENDING request for
		// this (user, organization), closing the duplicate-pending race.
		if repositories.IsUniqueViolation(err) {
			return nil, ErrDuplicatePending
		}
		return nil, fmt.Errorf("failed to store entry request: %w", err)
	}

	telemetry.EntryRequestTransitionsTotal.WithLabelValues("created").Inc()

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return s.toDTO(ctx, req, user), nil
}

// Approve transitions a PENDING request to APPROVED: the membership insert,
// role directory registration, and status flip commit atomically, so a
// partial failure never leaves an admitted member invisible to subsequent
// reads. The directory sync notification goes out after commit, fire and
// forget.
func (s *EntryRequestService) Approve(ctx context.Context, requestID string) error {
	req, err := s.entries.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to look up entry request: %w", err)
	}
	if req == nil {
		return ErrNotFound
	}
	if req.Status != models.RequestPending {
		return ErrAlreadyProcessed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	member := &models.OrganizationMember{
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Role:           req.Role,
		Status:         models.MemberActive,
	}
	if err := s.members.CreateTx(ctx, tx, member); err != nil {
		if repositories.IsUniqueViolation(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}

	if err := s.orgs.AddToRoleDirectory(ctx, tx, req.OrganizationID, req.UserID, req.Role); err != nil {
		return fmt.Errorf("failed to register in role directory: %w", err)
	}

	if err := s.entries.UpdateStatusTx(ctx, tx, req.ID, models.RequestApproved); err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit approval: %w", err)
	}

	telemetry.EntryRequestTransitionsTotal.WithLabelValues("approved").Inc()

	event := syncpkg.MemberSyncEvent{
		EventType:      syncpkg.EventMemberAdded,
		OrganizationID: member.OrganizationID,
		UserID:         member.UserID,
		MemberID:       member.ID,
		Role:           string(member.Role),
		Status:         string(member.Status),
	}
	safego.Go("entry-request-sync", func() {
		if err := s.publisher.PublishMemberSync(context.Background(), event); err != nil {
			s.logger.Error("member sync notification failed", "member_id", event.MemberID, "error", err)
		}
	})

	return nil
}

// Reject transitions a PENDING request to DENIED
func (s *EntryRequestService) Reject(ctx context.Context, requestID string) error {
	req, err := s.entries.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to look up entry request: %w", err)
	}
	if req == nil {
		return ErrNotFound
	}
	if req.Status != models.RequestPending {
		return ErrAlreadyProcessed
	}

	if err := s.entries.UpdateStatus(ctx, requestID, models.RequestDenied); err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	telemetry.EntryRequestTransitionsTotal.WithLabelValues("denied").Inc()
	return nil
}

// Update edits the requested role on a still-PENDING request. A nil role is
// a no-op refresh.
func (s *EntryRequestService) Update(ctx context.Context, requestID string, role *models.Role) (*EntryRequestDTO, error) {
	req, err := s.entries.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up entry request: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}
	if req.Status != models.RequestPending {
		return nil, ErrAlreadyProcessed
	}

	if role != nil {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *role)
		}
		if err := s.entries.UpdateRole(ctx, requestID, *role); err != nil {
			return nil, fmt.Errorf("failed to update requested role: %w", err)
		}
		req.Role = *role
	}

	user, err := s.users.GetUserByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, req.UserID)
	}
	return s.toDTO(ctx, req, user), nil
}

// Delete removes a request unconditionally, regardless of status. Approved
// and denied requests are historical records the admin may prune.
func (s *EntryRequestService) Delete(ctx context.Context, requestID string) error {
	req, err := s.entries.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to look up entry request: %w", err)
	}
	if req == nil {
		return ErrNotFound
	}
	return s.entries.Delete(ctx, requestID)
}

// ListPending lists an organization's PENDING requests, resolved by hubCode.
// Rows whose user record has vanished are dropped rather than surfaced as
// partial failures.
func (s *EntryRequestService) ListPending(ctx context.Context, hubCode string) ([]*EntryRequestDTO, error) {
	org, err := s.orgs.GetByHubCode(ctx, hubCode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hub code: %w", err)
	}
	if org == nil {
		return nil, fmt.Errorf("%w: organization with hub code %s", ErrNotFound, hubCode)
	}

	reqs, err := s.entries.FindByOrgAndStatus(ctx, org.ID, models.RequestPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}

	dtos := make([]*EntryRequestDTO, 0, len(reqs))
	for _, req := range reqs {
		user, err := s.users.GetUserByID(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		if user == nil {
			continue
		}
		dtos = append(dtos, s.toDTO(ctx, req, user))
	}
	return dtos, nil
}

// ListUserRequests lists a user's entry requests across organizations,
// newest first
func (s *EntryRequestService) ListUserRequests(ctx context.Context, userID string) ([]*EntryRequestDTO, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	reqs, err := s.entries.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user requests: %w", err)
	}

	dtos := make([]*EntryRequestDTO, 0, len(reqs))
	for _, req := range reqs {
		dtos = append(dtos, s.toDTO(ctx, req, user))
	}
	return dtos, nil
}

// GetByID retrieves one request with its user projection
func (s *EntryRequestService) GetByID(ctx context.Context, requestID string) (*EntryRequestDTO, error) {
	req, err := s.entries.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up entry request: %w", err)
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
	return s.toDTO(ctx, req, user), nil
}

func (s *EntryRequestService) toDTO(ctx context.Context, req *models.EntryRequest, user *models.User) *EntryRequestDTO {
	userDTO := UserDTO{
		ID:       user.ID,
		FullName: user.FullName,
		Email:    user.Email,
	}
	if user.FaceImageID != nil && *user.FaceImageID != "" {
		if url, err := s.host.SignedURL(ctx, *user.FaceImageID, s.urlTTL); err != nil {
			s.logger.Warn("failed to sign face image URL", "image_id", *user.FaceImageID, "error", err)
		} else {
			userDTO.FaceImageURL = &url
		}
	}

	return &EntryRequestDTO{
		ID:          req.ID,
		HubCode:     req.HubCode,
		Role:        req.Role,
		Status:      req.Status,
		RequestedAt: req.RequestedAt,
		User:        userDTO,
	}
}
