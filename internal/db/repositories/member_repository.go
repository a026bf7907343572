// member_repository.go implements MemberRepository, providing queries for the
// durable user-to-organization membership records keyed by (user, organization).
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/campusface/campusface/internal/db/models"
)

// MemberRepository handles organization membership database operations
type MemberRepository struct {
	db *sql.DB
}

// NewMemberRepository creates a new MemberRepository
func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

const memberColumns = "id, organization_id, user_id, role, status, face_image_id, created_at, updated_at"

func scanMember(row interface{ Scan(...any) error }) (*models.OrganizationMember, error) {
	m := &models.OrganizationMember{}
	err := row.Scan(
		&m.ID,
		&m.OrganizationID,
		&m.UserID,
		&m.Role,
		&m.Status,
		&m.FaceImageID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetByID retrieves a membership by its id
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*models.OrganizationMember, error) {
	query := `SELECT ` + memberColumns + ` FROM organization_members WHERE id = $1`
	return scanMember(r.db.QueryRowContext(ctx, query, id))
}

// GetByUserAndOrg retrieves the membership for (userID, orgID)
func (r *MemberRepository) GetByUserAndOrg(ctx context.Context, userID, orgID string) (*models.OrganizationMember, error) {
	query := `SELECT ` + memberColumns + ` FROM organization_members WHERE user_id = $1 AND organization_id = $2`
	return scanMember(r.db.QueryRowContext(ctx, query, userID, orgID))
}

// Create inserts a membership, assigning its id and timestamps
func (r *MemberRepository) Create(ctx context.Context, member *models.OrganizationMember) error {
	return r.create(ctx, r.db, member)
}

// CreateTx inserts a membership inside an existing transaction. Used by the
// entry request approval path so the membership, directory registration, and
// request status update commit together.
func (r *MemberRepository) CreateTx(ctx context.Context, tx *sql.Tx, member *models.OrganizationMember) error {
	return r.create(ctx, tx, member)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *MemberRepository) create(ctx context.Context, ex execer, member *models.OrganizationMember) error {
	member.ID = uuid.New().String()
	member.CreatedAt = time.Now()
	member.UpdatedAt = member.CreatedAt

	query := `
		INSERT INTO organization_members (id, organization_id, user_id, role, status, face_image_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := ex.ExecContext(ctx, query,
		member.ID,
		member.OrganizationID,
		member.UserID,
		member.Role,
		member.Status,
		member.FaceImageID,
		member.CreatedAt,
		member.UpdatedAt,
	)
	return err
}

// UpdateFaceImageID sets the membership's per-organization photo override
func (r *MemberRepository) UpdateFaceImageID(ctx context.Context, memberID, faceImageID string) error {
	query := `UPDATE organization_members SET face_image_id = $2, updated_at = now() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, memberID, faceImageID)
	return err
}

// UpdateRoleAndStatus administratively overrides a membership's role and status
func (r *MemberRepository) UpdateRoleAndStatus(ctx context.Context, memberID string, role models.Role, status models.MemberStatus) error {
	query := `UPDATE organization_members SET role = $2, status = $3, updated_at = now() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, memberID, role, status)
	return err
}

// ListByOrg retrieves all memberships in an organization with user details
func (r *MemberRepository) ListByOrg(ctx context.Context, orgID string) ([]*models.OrganizationMemberWithUser, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.status, m.face_image_id,
		       m.created_at, m.updated_at, u.full_name, u.email
		FROM organization_members m
		JOIN users u ON m.user_id = u.id
		WHERE m.organization_id = $1
		ORDER BY u.full_name
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.OrganizationMemberWithUser
	for rows.Next() {
		m := &models.OrganizationMemberWithUser{}
		if err := rows.Scan(
			&m.ID,
			&m.OrganizationID,
			&m.UserID,
			&m.Role,
			&m.Status,
			&m.FaceImageID,
			&m.CreatedAt,
			&m.UpdatedAt,
			&m.UserFullName,
			&m.UserEmail,
		); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
