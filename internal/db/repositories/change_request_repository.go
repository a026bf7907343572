// change_request_repository.go implements ChangeRequestRepository, providing
// database queries for face photo change requests.
package repositories

import (
	"context"
	"database/sql"

	"github.com/campusface/campusface/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// ChangeRequestRepository handles database operations for change requests
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository creates a new change request repository
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

// Create inserts a new change request. The change_requests_pending_unique
// partial index rejects a second PENDING request for the same
// (user, organization); callers detect that with IsUniqueViolation.
func (r *ChangeRequestRepository) Create(ctx context.Context, req *models.ChangeRequest) error {
	query := `
		INSERT INTO change_requests (
			id, user_id, organization_id, new_face_image_id, status, requested_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.UserID, req.OrganizationID, req.NewFaceImageID,
		req.Status, req.RequestedAt,
	)
	return err
}

// GetByID retrieves a change request by ID
func (r *ChangeRequestRepository) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	var req models.ChangeRequest
	query := `SELECT * FROM change_requests WHERE id = $1`
	err := r.db.GetContext(ctx, &req, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &req, err
}

// FindByOrgAndStatus lists an organization's change requests in a given
// status, newest first
func (r *ChangeRequestRepository) FindByOrgAndStatus(ctx context.Context, orgID string, status models.RequestStatus) ([]*models.ChangeRequest, error) {
	var reqs []*models.ChangeRequest
	query := `
		SELECT * FROM change_requests
		WHERE organization_id = $1 AND status = $2
		ORDER BY requested_at DESC`
	err := r.db.SelectContext(ctx, &reqs, query, orgID, status)
	return reqs, err
}

// FindByUserID lists a user's change requests across all organizations,
// newest first
func (r *ChangeRequestRepository) FindByUserID(ctx context.Context, userID string) ([]*models.ChangeRequest, error) {
	var reqs []*models.ChangeRequest
	query := `
		SELECT * FROM change_requests
		WHERE user_id = $1
		ORDER BY requested_at DESC`
	err := r.db.SelectContext(ctx, &reqs, query, userID)
	return reqs, err
}

// UpdateStatus marks a request APPROVED or DENIED and stamps updated_at
func (r *ChangeRequestRepository) UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error {
	query := `UPDATE change_requests SET status = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status)
	return err
}

// UpdateImage swaps the proposed face image on a still-open request
func (r *ChangeRequestRepository) UpdateImage(ctx context.Context, id, newFaceImageID string) error {
	query := `UPDATE change_requests SET new_face_image_id = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, newFaceImageID)
	return err
}

// Delete removes a change request
func (r *ChangeRequestRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM change_requests WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
