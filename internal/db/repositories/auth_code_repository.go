// auth_code_repository.go implements AuthCodeRepository. The consumption and
// invalidation paths are conditional updates on the valid flag rather than
// read-then-write sequences: under concurrent validation of the same value,
// exactly one UPDATE ... WHERE valid wins and the losers observe zero rows.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/campusface/campusface/internal/db/models"
)

// AuthCodeRepository handles authorization code database operations
type AuthCodeRepository struct {
	db *sql.DB
}

// NewAuthCodeRepository creates a new AuthCodeRepository
func NewAuthCodeRepository(db *sql.DB) *AuthCodeRepository {
	return &AuthCodeRepository{db: db}
}

const codeColumns = "id, code, user_id, organization_id, expiration_time, valid, created_at"

func scanCode(row interface{ Scan(...any) error }) (*models.AuthCode, error) {
	code := &models.AuthCode{}
	err := row.Scan(
		&code.ID,
		&code.Code,
		&code.UserID,
		&code.OrganizationID,
		&code.ExpirationTime,
		&code.Valid,
		&code.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return code, nil
}

// Create inserts a new code, assigning its id. The partial unique index on
// (user_id, organization_id) WHERE valid makes this fail with a unique
// violation if another valid code for the owner slipped in after
// InvalidateByOwner — callers map that onto a retry or a conflict error.
func (r *AuthCodeRepository) Create(ctx context.Context, code *models.AuthCode) error {
	code.ID = uuid.New().String()
	code.CreatedAt = time.Now()

	query := `
		INSERT INTO auth_codes (id, code, user_id, organization_id, expiration_time, valid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		code.ID,
		code.Code,
		code.UserID,
		code.OrganizationID,
		code.ExpirationTime,
		code.Valid,
		code.CreatedAt,
	)
	return err
}

// GetByID retrieves a code by id regardless of validity
func (r *AuthCodeRepository) GetByID(ctx context.Context, id string) (*models.AuthCode, error) {
	query := `SELECT ` + codeColumns + ` FROM auth_codes WHERE id = $1`
	return scanCode(r.db.QueryRowContext(ctx, query, id))
}

// GetValidByCode retrieves the currently valid code matching value, if any.
// Consumed, superseded, and manually invalidated codes never match.
func (r *AuthCodeRepository) GetValidByCode(ctx context.Context, value string) (*models.AuthCode, error) {
	query := `SELECT ` + codeColumns + ` FROM auth_codes WHERE code = $1 AND valid`
	return scanCode(r.db.QueryRowContext(ctx, query, value))
}

// List retrieves all codes, newest first
func (r *AuthCodeRepository) List(ctx context.Context) ([]*models.AuthCode, error) {
	query := `SELECT ` + codeColumns + ` FROM auth_codes ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []*models.AuthCode
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// Consume marks the code invalid if and only if it is still valid, and
// reports whether this caller won. This is the single-use guarantee: N
// concurrent validations of the same value produce exactly one true.
func (r *AuthCodeRepository) Consume(ctx context.Context, id string) (bool, error) {
	query := `UPDATE auth_codes SET valid = false WHERE id = $1 AND valid`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Invalidate marks the code invalid unconditionally (expiry detection,
// manual administrative invalidation)
func (r *AuthCodeRepository) Invalidate(ctx context.Context, id string) error {
	query := `UPDATE auth_codes SET valid = false WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// InvalidateByOwner marks all valid codes for (userID, orgID) invalid.
// Called before generating a new code so at most one code per owner is live.
func (r *AuthCodeRepository) InvalidateByOwner(ctx context.Context, userID, orgID string) error {
	query := `UPDATE auth_codes SET valid = false WHERE user_id = $1 AND organization_id = $2 AND valid`
	_, err := r.db.ExecContext(ctx, query, userID, orgID)
	return err
}

// InvalidateExpired marks every valid code whose expiration has passed as
// invalid and returns how many were swept. Used by the background sweep;
// validation does not depend on it.
func (r *AuthCodeRepository) InvalidateExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE auth_codes SET valid = false WHERE valid AND expiration_time < $1`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// HasOtherValidForOwner reports whether a valid code other than excludeID
// exists for (userID, orgID). The administrative update path uses this to
// refuse re-validating a code when it would break the one-active-code rule.
func (r *AuthCodeRepository) HasOtherValidForOwner(ctx context.Context, userID, orgID, excludeID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM auth_codes
		WHERE user_id = $1 AND organization_id = $2 AND valid AND id <> $3
	)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, orgID, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Update administratively overrides the valid flag and expiration time
func (r *AuthCodeRepository) Update(ctx context.Context, id string, valid bool, expirationTime time.Time) error {
	query := `UPDATE auth_codes SET valid = $2, expiration_time = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, valid, expirationTime)
	return err
}

// Delete removes a code row
func (r *AuthCodeRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM auth_codes WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
