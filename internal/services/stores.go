// stores.go declares the narrow store interfaces the engines depend on.
// The concrete repositories in internal/db/repositories satisfy these;
// service tests substitute in-memory fakes.
package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/campusface/campusface/internal/db/models"
)

type codeStore interface {
	Create(ctx context.Context, code *models.AuthCode) error
	GetByID(ctx context.Context, id string) (*models.AuthCode, error)
	GetValidByCode(ctx context.Context, value string) (*models.AuthCode, error)
	List(ctx context.Context) ([]*models.AuthCode, error)
	Consume(ctx context.Context, id string) (bool, error)
	Invalidate(ctx context.Context, id string) error
	InvalidateByOwner(ctx context.Context, userID, orgID string) error
	HasOtherValidForOwner(ctx context.Context, userID, orgID, excludeID string) (bool, error)
	Update(ctx context.Context, id string, valid bool, expirationTime time.Time) error
	Delete(ctx context.Context, id string) error
}

type memberStore interface {
	GetByUserAndOrg(ctx context.Context, userID, orgID string) (*models.OrganizationMember, error)
	CreateTx(ctx context.Context, tx *sql.Tx, member *models.OrganizationMember) error
	UpdateFaceImageID(ctx context.Context, memberID, faceImageID string) error
}

type userStore interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

type orgStore interface {
	GetByHubCode(ctx context.Context, hubCode string) (*models.Organization, error)
	AddToRoleDirectory(ctx context.Context, tx *sql.Tx, orgID, userID string, role models.Role) error
}

type entryStore interface {
	Create(ctx context.Context, req *models.EntryRequest) error
	GetByID(ctx context.Context, id string) (*models.EntryRequest, error)
	FindByOrgAndStatus(ctx context.Context, orgID string, status models.RequestStatus) ([]*models.EntryRequest, error)
	FindByUserID(ctx context.Context, userID string) ([]*models.EntryRequest, error)
	UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, status models.RequestStatus) error
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error
	UpdateRole(ctx context.Context, id string, role models.Role) error
	Delete(ctx context.Context, id string) error
}

type changeStore interface {
	Create(ctx context.Context, req *models.ChangeRequest) error
	GetByID(ctx context.Context, id string) (*models.ChangeRequest, error)
	FindByOrgAndStatus(ctx context.Context, orgID string, status models.RequestStatus) ([]*models.ChangeRequest, error)
	FindByUserID(ctx context.Context, userID string) ([]*models.ChangeRequest, error)
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error
	UpdateImage(ctx context.Context, id, newFaceImageID string) error
	Delete(ctx context.Context, id string) error
}
