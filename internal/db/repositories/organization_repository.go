// organization_repository.go implements OrganizationRepository, providing hub
// lookup by join code and maintenance of the per-role directory id arrays.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/campusface/campusface/internal/db/models"
)

// OrganizationRepository handles organization database operations
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new OrganizationRepository
func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// roleDirectoryColumns maps a membership role to the organizations column
// holding that role's directory list. Keeping the dispatch here means the
// approval path stays a single table-driven call instead of three branches.
var roleDirectoryColumns = map[models.Role]string{
	models.RoleMember:    "member_ids",
	models.RoleValidator: "validator_ids",
	models.RoleAdmin:     "admin_ids",
}

const orgColumns = "id, name, hub_code, member_ids, validator_ids, admin_ids, created_at"

func scanOrganization(row interface{ Scan(...any) error }) (*models.Organization, error) {
	org := &models.Organization{}
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.HubCode,
		pq.Array(&org.MemberIDs),
		pq.Array(&org.ValidatorIDs),
		pq.Array(&org.AdminIDs),
		&org.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, orgID string) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return scanOrganization(r.db.QueryRowContext(ctx, query, orgID))
}

// GetByHubCode retrieves an organization by its human-shareable join code
func (r *OrganizationRepository) GetByHubCode(ctx context.Context, hubCode string) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE hub_code = $1`
	return scanOrganization(r.db.QueryRowContext(ctx, query, hubCode))
}

// Create creates a new organization, assigning its id
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	org.ID = uuid.New().String()
	org.CreatedAt = time.Now()

	query := `
		INSERT INTO organizations (id, name, hub_code, member_ids, validator_ids, admin_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.HubCode,
		pq.Array(org.MemberIDs),
		pq.Array(org.ValidatorIDs),
		pq.Array(org.AdminIDs),
		org.CreatedAt,
	)
	return err
}

// List retrieves organizations ordered by name
func (r *OrganizationRepository) List(ctx context.Context, limit, offset int) ([]*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations ORDER BY name LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// AddToRoleDirectory appends userID to the directory array for the given role,
// executed inside tx so directory registration commits atomically with the
// membership insert and request status update. array_append with a guard
// against duplicates keeps the call idempotent on retry.
func (r *OrganizationRepository) AddToRoleDirectory(ctx context.Context, tx *sql.Tx, orgID, userID string, role models.Role) error {
	column, ok := roleDirectoryColumns[role]
	if !ok {
		return fmt.Errorf("unknown role: %s", role)
	}

	// Column name comes from the fixed dispatch table above, never from input.
	query := fmt.Sprintf(`
		UPDATE organizations
		SET %s = array_append(%s, $2)
		WHERE id = $1 AND NOT ($2 = ANY(%s))
	`, column, column, column)

	_, err := tx.ExecContext(ctx, query, orgID, userID)
	return err
}
