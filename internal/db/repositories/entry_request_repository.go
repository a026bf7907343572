// entry_request_repository.go implements EntryRequestRepository, providing
// database queries for organization entry requests.
package repositories

import (
	"context"
	"database/sql"

	"github.com/campusface/campusface/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// EntryRequestRepository handles database operations for entry requests
type EntryRequestRepository struct {
	db *sqlx.DB
}

// NewEntryRequestRepository creates a new entry request repository
func NewEntryRequestRepository(db *sqlx.DB) *EntryRequestRepository {
	return &EntryRequestRepository{db: db}
}

// Create inserts a new entry request. The entry_requests_pending_unique
// partial index rejects a second PENDING request for the same
// (user, organization); callers detect that with IsUniqueViolation.
func (r *EntryRequestRepository) Create(ctx context.Context, req *models.EntryRequest) error {
	query := `
		INSERT INTO entry_requests (
			id, user_id, organization_id, hub_code, role, status, requested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.UserID, req.OrganizationID, req.HubCode,
		req.Role, req.Status, req.RequestedAt,
	)
	return err
}

// GetByID retrieves an entry request by ID
func (r *EntryRequestRepository) GetByID(ctx context.Context, id string) (*models.EntryRequest, error) {
	var req models.EntryRequest
	query := `SELECT * FROM entry_requests WHERE id = $1`
	err := r.db.GetContext(ctx, &req, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &req, err
}

// FindByOrgAndStatus lists an organization's entry requests in a given status,
// newest first
func (r *EntryRequestRepository) FindByOrgAndStatus(ctx context.Context, orgID string, status models.RequestStatus) ([]*models.EntryRequest, error) {
	var reqs []*models.EntryRequest
	query := `
		SELECT * FROM entry_requests
		WHERE organization_id = $1 AND status = $2
		ORDER BY requested_at DESC`
	err := r.db.SelectContext(ctx, &reqs, query, orgID, status)
	return reqs, err
}

// FindByUserID lists a user's entry requests across all organizations, newest
// first
func (r *EntryRequestRepository) FindByUserID(ctx context.Context, userID string) ([]*models.EntryRequest, error) {
	var reqs []*models.EntryRequest
	query := `
		SELECT * FROM entry_requests
		WHERE user_id = $1
		ORDER BY requested_at DESC`
	err := r.db.SelectContext(ctx, &reqs, query, userID)
	return reqs, err
}

// UpdateStatus marks a request APPROVED or DENIED and stamps updated_at
func (r *EntryRequestRepository) UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error {
	query := `UPDATE entry_requests SET status = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status)
	return err
}

// UpdateStatusTx is UpdateStatus inside an existing transaction. Approval uses
// it so the status flip commits atomically with the membership insert and the
// directory update.
func (r *EntryRequestRepository) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, status models.RequestStatus) error {
	query := `UPDATE entry_requests SET status = $2, updated_at = NOW() WHERE id = $1`
	_, err := tx.ExecContext(ctx, query, id, status)
	return err
}

// UpdateRole changes the requested role on a still-open request
func (r *EntryRequestRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	query := `UPDATE entry_requests SET role = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, role)
	return err
}

// Delete removes an entry request
func (r *EntryRequestRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM entry_requests WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
