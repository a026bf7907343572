package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/campusface/campusface/internal/db/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var changeReqCols = []string{
	"id", "user_id", "organization_id", "new_face_image_id", "status",
	"requested_at", "updated_at",
}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func sampleChangeReqRow() *sqlmock.Rows {
	return sqlmock.NewRows(changeReqCols).
		AddRow("chg-1", "user-1", "org-1", "faces/new.jpg", "PENDING",
			time.Now(), nil)
}

func emptyChangeReqRow() *sqlmock.Rows {
	return sqlmock.NewRows(changeReqCols)
}

func newChangeReqRepo(t *testing.T) (*ChangeRequestRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewChangeRequestRepository(sqlx.NewDb(db, "sqlmock")), mock
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateChangeRequest_Success(t *testing.T) {
	repo, mock := newChangeReqRepo(t)
	mock.ExpectExec("INSERT INTO change_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := &models.ChangeRequest{
		ID: "chg-1", UserID: "user-1", OrganizationID: "org-1",
		NewFaceImageID: "faces/new.jpg",
		Status:         models.RequestPending, RequestedAt: time.Now(),
	}
	if err := repo.Create(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateChangeRequest_DuplicatePending(t *testing.T) {
	repo, mock := newChangeReqRepo(t)
	mock.ExpectExec("INSERT INTO change_requests").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "change_requests_pending_unique"})

	req := &models.ChangeRequest{
		ID: "chg-2", UserID: "user-1", OrganizationID: "org-1",
		NewFaceImageID: "faces/other.jpg",
		Status:         models.RequestPending, RequestedAt: time.Now(),
	}
	err := repo.Create(context.Background(), req)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestGetChangeRequestByID_Found(t *testing.T) {
	repo, mock := newChangeReqRepo(t)
	mock.ExpectQuery("SELECT.*FROM change_requests.*WHERE id").
		WillReturnRows(sampleChangeReqRow())

	req, err := repo.GetByID(context.Background(), "chg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req == nil {
		t.Fatal("expected request, got nil")
	}
	if req.NewFaceImageID != "faces/new.jpg" {
		t.Errorf("NewFaceImageID = %s, want faces/new.jpg", req.NewFaceImageID)
	}
}

func TestGetChangeRequestByID_NotFound(t *testing.T) {
	repo, mock := newChangeReqRepo(t)
	mock.ExpectQuery("SELECT.*FROM change_requests.*WHERE id").
		WillReturnRows(emptyChangeReqRow())

	req, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req != nil {
		t.Error("expected nil request, got non-nil")
	}
}

// ---------------------------------------------------------------------------
// UpdateImage / UpdateStatus
// ---------------------------------------------------------------------------

func TestUpdateChangeRequestImage(t *testing.T) {
	repo, mock := newChangeReqRepo(t)
	mock.ExpectExec("UPDATE change_requests SET new_face_image_id").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateImage(context.Background(), "chg-1", "faces/replacement.jpg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateChangeRequestStatus(t *testing.T) {
	repo, mock := newChangeReqRepo(t)
	mock.ExpectExec("UPDATE change_requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "chg-1", models.RequestApproved); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// FindByUserID
// ---------------------------------------------------------------------------

func TestFindChangeRequestsByUserID(t *testing.T) {
	repo, mock := newChangeReqRepo(t)
	mock.ExpectQuery("(?s)SELECT.*FROM change_requests.*WHERE user_id.*ORDER BY requested_at DESC").
		WillReturnRows(sampleChangeReqRow())

	reqs, err := repo.FindByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("len = %d, want 1", len(reqs))
	}
}
