// authcode.go implements the authorization code engine: short-lived,
// single-use 6-digit codes proving organization membership at a physical
// gate. A code moves from valid to invalid exactly once, by consumption,
// expiry detection, supersession, or manual invalidation; no transition back.
package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/campusface/campusface/internal/db/models"
	"github.com/campusface/campusface/internal/db/repositories"
	"github.com/campusface/campusface/internal/images"
	"github.com/campusface/campusface/internal/telemetry"
)

// Validation outcome messages. The gate app displays these verbatim.
const (
	msgCodeInvalid   = "Código inválido, não encontrado ou já utilizado."
	msgCodeExpired   = "Código expirado."
	msgOwnerMissing  = "Usuário do código não encontrado na organização."
	msgAccessGranted = "Acesso Autorizado!"
)

// generateAttempts bounds retries when code creation loses the race against
// a concurrent generation for the same owner.
const generateAttempts = 3

// AuthCodeService generates, validates, and administers authorization codes
type AuthCodeService struct {
	codes   codeStore
	members memberStore
	users   userStore
	host    images.Host
	logger  *slog.Logger

	codeTTL time.Duration
	urlTTL  time.Duration

	// now is stubbed in tests to exercise expiry windows
	now func() time.Time
}

// NewAuthCodeService creates a new authorization code engine
func NewAuthCodeService(codes codeStore, members memberStore, users userStore, host images.Host, logger *slog.Logger, codeTTL, urlTTL time.Duration) *AuthCodeService {
	return &AuthCodeService{
		codes:   codes,
		members: members,
		users:   users,
		host:    host,
		logger:  logger,
		codeTTL: codeTTL,
		urlTTL:  urlTTL,
		now:     time.Now,
	}
}

// newCodeValue draws a uniform 6-digit value in [100000, 999999]
func newCodeValue() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to draw code value: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// GenerateCode invalidates the caller's previous codes and issues a fresh
// one. The caller must be an ACTIVE member of the organization. The response
// carries only the value and expiry; the value is the capability.
func (s *AuthCodeService) GenerateCode(ctx context.Context, userID, orgID string) (*GeneratedCode, error) {
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

	// The partial unique index on (user, org) WHERE valid can reject the
	// insert if a concurrent generation lands between our invalidate and
	// create. Losing that race is rare; invalidate again and retry.
	for attempt := 0; attempt < generateAttempts; attempt++ {
		if err := s.codes.InvalidateByOwner(ctx, userID, orgID); err != nil {
			return nil, fmt.Errorf("failed to invalidate previous codes: %w", err)
		}

		value, err := newCodeValue()
		if err != nil {
			return nil, err
		}

		code := &models.AuthCode{
			Code:           value,
			UserID:         userID,
			OrganizationID: orgID,
			ExpirationTime: s.now().Add(s.codeTTL),
			Valid:          true,
		}
		err = s.codes.Create(ctx, code)
		if err == nil {
			telemetry.CodesGeneratedTotal.Inc()
			return &GeneratedCode{Code: code.Code, ExpirationTime: code.ExpirationTime}, nil
		}
		if !repositories.IsUniqueViolation(err) {
			return nil, fmt.Errorf("failed to store code: %w", err)
		}
	}

	return nil, fmt.Errorf("failed to generate code for user %s: retries exhausted", userID)
}

// ValidateCode consumes a code on behalf of a validator. Unknown, consumed,
// expired, and owner-missing codes are reported as invalid results, not
// errors; a caller without VALIDATOR or ADMIN standing gets ErrForbidden.
// Exactly one of N concurrent validations of the same value succeeds.
func (s *AuthCodeService) ValidateCode(ctx context.Context, value, validatorUserID string) (*ValidationResult, error) {
	code, err := s.codes.GetValidByCode(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("failed to look up code: %w", err)
	}
	if code == nil {
		telemetry.CodeValidationsTotal.WithLabelValues("invalid").Inc()
		return &ValidationResult{Valid: false, Message: msgCodeInvalid}, nil
	}

	if code.Expired(s.now()) {
		if err := s.codes.Invalidate(ctx, code.ID); err != nil {
			s.logger.Error("failed to invalidate expired code", "code_id", code.ID, "error", err)
		}
		telemetry.CodeValidationsTotal.WithLabelValues("expired").Inc()
		return &ValidationResult{Valid: false, Message: msgCodeExpired}, nil
	}

	validator, err := s.members.GetByUserAndOrg(ctx, validatorUserID, code.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up validator membership: %w", err)
	}
	if validator == nil ||
		(validator.Role != models.RoleValidator && validator.Role != models.RoleAdmin) ||
		validator.Status != models.MemberActive {
		telemetry.CodeValidationsTotal.WithLabelValues("forbidden").Inc()
		return nil, ErrForbidden
	}

	// Conditional update: the winner of concurrent validations flips valid
	// to false, everyone else sees an already-spent code.
	won, err := s.codes.Consume(ctx, code.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume code: %w", err)
	}
	if !won {
		telemetry.CodeValidationsTotal.WithLabelValues("invalid").Inc()
		return &ValidationResult{Valid: false, Message: msgCodeInvalid}, nil
	}

	owner, err := s.members.GetByUserAndOrg(ctx, code.UserID, code.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up code owner: %w", err)
	}
	if owner == nil {
		telemetry.CodeValidationsTotal.WithLabelValues("member_missing").Inc()
		return &ValidationResult{Valid: false, Message: msgOwnerMissing}, nil
	}

	dto, err := s.buildMemberDTO(ctx, owner)
	if err != nil {
		return nil, err
	}
	if dto == nil {
		telemetry.CodeValidationsTotal.WithLabelValues("member_missing").Inc()
		return &ValidationResult{Valid: false, Message: msgOwnerMissing}, nil
	}

	telemetry.CodeValidationsTotal.WithLabelValues("authorized").Inc()
	return &ValidationResult{Valid: true, Message: msgAccessGranted, Member: dto}, nil
}

// buildMemberDTO resolves the membership's user record and face photo into
// the display projection. Returns nil when the user record is gone.
func (s *AuthCodeService) buildMemberDTO(ctx context.Context, member *models.OrganizationMember) (*MemberDTO, error) {
	user, err := s.users.GetUserByID(ctx, member.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, nil
	}

	userDTO := UserDTO{
		ID:       user.ID,
		FullName: user.FullName,
		Email:    user.Email,
	}

	// The membership's photo override wins; fall back to the account photo.
	faceImageID := user.FaceImageID
	if member.FaceImageID != nil && *member.FaceImageID != "" {
		faceImageID = member.FaceImageID
	}
	if faceImageID != nil && *faceImageID != "" {
		if url, err := s.host.SignedURL(ctx, *faceImageID, s.urlTTL); err != nil {
			s.logger.Warn("failed to sign face image URL", "image_id", *faceImageID, "error", err)
		} else {
			userDTO.FaceImageURL = &url
		}
	}

	return &MemberDTO{
		ID:       member.ID,
		Role:     member.Role,
		Status:   member.Status,
		JoinedAt: member.CreatedAt,
		User:     userDTO,
	}, nil
}

// ListAllCodes lists every stored code, administrative use only
func (s *AuthCodeService) ListAllCodes(ctx context.Context) ([]*AuthCodeDTO, error) {
	codes, err := s.codes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}

	dtos := make([]*AuthCodeDTO, 0, len(codes))
	for _, code := range codes {
		dtos = append(dtos, toAuthCodeDTO(code))
	}
	return dtos, nil
}

// GetCodeByID retrieves a single code regardless of validity
func (s *AuthCodeService) GetCodeByID(ctx context.Context, id string) (*AuthCodeDTO, error) {
	code, err := s.codes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up code: %w", err)
	}
	if code == nil {
		return nil, ErrNotFound
	}
	return toAuthCodeDTO(code), nil
}

// UpdateCode administratively overrides a code's validity or expiration.
// Re-validating an invalid code is refused when the owner already has another
// valid code, which would break the one-active-code rule.
func (s *AuthCodeService) UpdateCode(ctx context.Context, id string, valid *bool, expirationTime *time.Time) (*AuthCodeDTO, error) {
	code, err := s.codes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up code: %w", err)
	}
	if code == nil {
		return nil, ErrNotFound
	}

	newValid := code.Valid
	if valid != nil {
		newValid = *valid
	}
	newExpiry := code.ExpirationTime
	if expirationTime != nil {
		newExpiry = *expirationTime
	}

	if newValid && !code.Valid {
		other, err := s.codes.HasOtherValidForOwner(ctx, code.UserID, code.OrganizationID, code.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check for other valid codes: %w", err)
		}
		if other {
			return nil, fmt.Errorf("%w: another valid code exists for this member", ErrInvalidInput)
		}
	}

	if err := s.codes.Update(ctx, id, newValid, newExpiry); err != nil {
		return nil, fmt.Errorf("failed to update code: %w", err)
	}

	code.Valid = newValid
	code.ExpirationTime = newExpiry
	return toAuthCodeDTO(code), nil
}

// DeleteCode removes a code row
func (s *AuthCodeService) DeleteCode(ctx context.Context, id string) error {
	code, err := s.codes.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to look up code: %w", err)
	}
	if code == nil {
		return ErrNotFound
	}
	return s.codes.Delete(ctx, id)
}

// InvalidateCode manually invalidates a code without consuming it
func (s *AuthCodeService) InvalidateCode(ctx context.Context, id string) error {
	code, err := s.codes.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to look up code: %w", err)
	}
	if code == nil {
		return ErrNotFound
	}
	return s.codes.Invalidate(ctx, id)
}
