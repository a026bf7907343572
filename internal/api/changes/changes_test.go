package changes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusface/campusface/internal/db/models"
	"github.com/campusface/campusface/internal/middleware"
	"github.com/campusface/campusface/internal/services"
)

const testMaxUpload = 1 << 20

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

// ---------------------------------------------------------------------------
// Mock engine
// ---------------------------------------------------------------------------

type mockEngine struct {
	createFn      func(ctx context.Context, userID, orgID string, imageData []byte) (*models.ChangeRequest, error)
	reviewFn      func(ctx context.Context, requestID, adminUserID string, approved bool) error
	updateFn      func(ctx context.Context, requestID string, imageData []byte) (*models.ChangeRequest, error)
	deleteFn      func(ctx context.Context, requestID string) error
	listPendingFn func(ctx context.Context, orgID string) ([]*services.ChangeRequestDTO, error)
	listMineFn    func(ctx context.Context, userID string) ([]*services.ChangeRequestDTO, error)
	getFn         func(ctx context.Context, requestID string) (*services.ChangeRequestDTO, error)
}

func (m *mockEngine) Create(ctx context.Context, userID, orgID string, imageData []byte) (*models.ChangeRequest, error) {
	return m.createFn(ctx, userID, orgID, imageData)
}

func (m *mockEngine) Review(ctx context.Context, requestID, adminUserID string, approved bool) error {
	return m.reviewFn(ctx, requestID, adminUserID, approved)
}

func (m *mockEngine) Update(ctx context.Context, requestID string, imageData []byte) (*models.ChangeRequest, error) {
	return m.updateFn(ctx, requestID, imageData)
}

func (m *mockEngine) Delete(ctx context.Context, requestID string) error {
	return m.deleteFn(ctx, requestID)
}

func (m *mockEngine) ListPending(ctx context.Context, orgID string) ([]*services.ChangeRequestDTO, error) {
	return m.listPendingFn(ctx, orgID)
}

func (m *mockEngine) ListUserRequests(ctx context.Context, userID string) ([]*services.ChangeRequestDTO, error) {
	return m.listMineFn(ctx, userID)
}

func (m *mockEngine) GetByID(ctx context.Context, requestID string) (*services.ChangeRequestDTO, error) {
	return m.getFn(ctx, requestID)
}

func newRouter(engine Engine) *gin.Engine {
	h := NewHandlers(engine, testMaxUpload)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "user-1")
	})
	g := r.Group("/api/v1/change-requests")
	g.POST("", h.Create)
	g.GET("/pending", h.ListPending)
	g.GET("/mine", h.ListMine)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/review", h.Review)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// multipartBody builds a multipart body with optional fields and an
// optional image part.
func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "face.jpg")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func doMultipart(t *testing.T, r *gin.Engine, method, path string, fields map[string]string, image []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	body, contentType := multipartBody(t, fields, image)
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_UploadsPhotoForCaller(t *testing.T) {
	image := []byte("jpeg-bytes")
	engine := &mockEngine{
		createFn: func(ctx context.Context, userID, orgID string, imageData []byte) (*models.ChangeRequest, error) {
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, "org-1", orgID)
			assert.Equal(t, image, imageData)
			return &models.ChangeRequest{ID: "req-1", Status: models.RequestPending}, nil
		},
		getFn: func(ctx context.Context, requestID string) (*services.ChangeRequestDTO, error) {
			assert.Equal(t, "req-1", requestID)
			return &services.ChangeRequestDTO{ID: requestID, Status: models.RequestPending}, nil
		},
	}

	w, env := doMultipart(t, newRouter(engine), http.MethodPost, "/api/v1/change-requests",
		map[string]string{"organization_id": "org-1"}, image)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	var dto services.ChangeRequestDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "req-1", dto.ID)
}

func TestCreate_MissingOrganization(t *testing.T) {
	engine := &mockEngine{
		createFn: func(ctx context.Context, userID, orgID string, imageData []byte) (*models.ChangeRequest, error) {
			t.Fatal("engine should not be called")
			return nil, nil
		},
	}

	w, _ := doMultipart(t, newRouter(engine), http.MethodPost, "/api/v1/change-requests",
		nil, []byte("jpeg-bytes"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreate_MissingImage(t *testing.T) {
	engine := &mockEngine{
		createFn: func(ctx context.Context, userID, orgID string, imageData []byte) (*models.ChangeRequest, error) {
			t.Fatal("engine should not be called")
			return nil, nil
		},
	}

	w, _ := doMultipart(t, newRouter(engine), http.MethodPost, "/api/v1/change-requests",
		map[string]string{"organization_id": "org-1"}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreate_OversizedImage(t *testing.T) {
	engine := &mockEngine{
		createFn: func(ctx context.Context, userID, orgID string, imageData []byte) (*models.ChangeRequest, error) {
			t.Fatal("engine should not be called")
			return nil, nil
		},
	}

	w, _ := doMultipart(t, newRouter(engine), http.MethodPost, "/api/v1/change-requests",
		map[string]string{"organization_id": "org-1"}, make([]byte, testMaxUpload+1))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreate_EngineErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not a member", services.ErrNotMember, http.StatusUnprocessableEntity},
		{"inactive member", services.ErrMemberInactive, http.StatusUnprocessableEntity},
		{"duplicate pending", services.ErrDuplicatePending, http.StatusConflict},
		{"invalid image", services.ErrInvalidInput, http.StatusBadRequest},
		{"storage down", services.ErrUpstream, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{
				createFn: func(ctx context.Context, userID, orgID string, imageData []byte) (*models.ChangeRequest, error) {
					return nil, tt.err
				},
			}
			w, env := doMultipart(t, newRouter(engine), http.MethodPost, "/api/v1/change-requests",
				map[string]string{"organization_id": "org-1"}, []byte("jpeg-bytes"))
			assert.Equal(t, tt.want, w.Code)
			assert.False(t, env.Success)
		})
	}
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

func TestListPending_RequiresOrganization(t *testing.T) {
	engine := &mockEngine{
		listPendingFn: func(ctx context.Context, orgID string) ([]*services.ChangeRequestDTO, error) {
			t.Fatal("engine should not be called")
			return nil, nil
		},
	}

	w, _ := doJSON(t, newRouter(engine), http.MethodGet, "/api/v1/change-requests/pending", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPending_ForwardsOrganization(t *testing.T) {
	engine := &mockEngine{
		listPendingFn: func(ctx context.Context, orgID string) ([]*services.ChangeRequestDTO, error) {
			assert.Equal(t, "org-1", orgID)
			return []*services.ChangeRequestDTO{{ID: "req-1"}}, nil
		},
	}

	w, env := doJSON(t, newRouter(engine), http.MethodGet,
		"/api/v1/change-requests/pending?organizationId=org-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var list []*services.ChangeRequestDTO
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestListMine_UsesCaller(t *testing.T) {
	engine := &mockEngine{
		listMineFn: func(ctx context.Context, userID string) ([]*services.ChangeRequestDTO, error) {
			assert.Equal(t, "user-1", userID)
			return []*services.ChangeRequestDTO{}, nil
		},
	}

	w, _ := doJSON(t, newRouter(engine), http.MethodGet, "/api/v1/change-requests/mine", nil)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGet_NotFound(t *testing.T) {
	engine := &mockEngine{
		getFn: func(ctx context.Context, requestID string) (*services.ChangeRequestDTO, error) {
			return nil, services.ErrNotFound
		},
	}

	w, _ := doJSON(t, newRouter(engine), http.MethodGet, "/api/v1/change-requests/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---------------------------------------------------------------------------
// Update / Delete
// ---------------------------------------------------------------------------

func TestUpdate_ReplacesPhoto(t *testing.T) {
	image := []byte("new-jpeg-bytes")
	engine := &mockEngine{
		updateFn: func(ctx context.Context, requestID string, imageData []byte) (*models.ChangeRequest, error) {
			assert.Equal(t, "req-1", requestID)
			assert.Equal(t, image, imageData)
			return &models.ChangeRequest{ID: requestID, Status: models.RequestPending}, nil
		},
		getFn: func(ctx context.Context, requestID string) (*services.ChangeRequestDTO, error) {
			return &services.ChangeRequestDTO{ID: requestID}, nil
		},
	}

	w, _ := doMultipart(t, newRouter(engine), http.MethodPut, "/api/v1/change-requests/req-1", nil, image)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdate_AlreadyProcessed(t *testing.T) {
	engine := &mockEngine{
		updateFn: func(ctx context.Context, requestID string, imageData []byte) (*models.ChangeRequest, error) {
			return nil, services.ErrAlreadyProcessed
		},
	}

	w, _ := doMultipart(t, newRouter(engine), http.MethodPut, "/api/v1/change-requests/req-1",
		nil, []byte("jpeg-bytes"))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDelete_Succeeds(t *testing.T) {
	var deleted string
	engine := &mockEngine{
		deleteFn: func(ctx context.Context, requestID string) error {
			deleted = requestID
			return nil
		},
	}

	w, _ := doJSON(t, newRouter(engine), http.MethodDelete, "/api/v1/change-requests/req-1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", deleted)
}

// ---------------------------------------------------------------------------
// Review
// ---------------------------------------------------------------------------

func TestReview_ApprovesAsCaller(t *testing.T) {
	engine := &mockEngine{
		reviewFn: func(ctx context.Context, requestID, adminUserID string, approved bool) error {
			assert.Equal(t, "req-1", requestID)
			assert.Equal(t, "user-1", adminUserID)
			assert.True(t, approved)
			return nil
		},
	}

	w, env := doJSON(t, newRouter(engine), http.MethodPost, "/api/v1/change-requests/req-1/review",
		gin.H{"approved": true})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Change request approved", env.Message)
}

func TestReview_DenyIsExplicitFalse(t *testing.T) {
	engine := &mockEngine{
		reviewFn: func(ctx context.Context, requestID, adminUserID string, approved bool) error {
			assert.False(t, approved)
			return nil
		},
	}

	w, env := doJSON(t, newRouter(engine), http.MethodPost, "/api/v1/change-requests/req-1/review",
		gin.H{"approved": false})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Change request denied", env.Message)
}

func TestReview_MissingVerdict(t *testing.T) {
	engine := &mockEngine{
		reviewFn: func(ctx context.Context, requestID, adminUserID string, approved bool) error {
			t.Fatal("engine should not be called")
			return nil
		},
	}

	w, _ := doJSON(t, newRouter(engine), http.MethodPost, "/api/v1/change-requests/req-1/review", gin.H{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReview_NotAnAdmin(t *testing.T) {
	engine := &mockEngine{
		reviewFn: func(ctx context.Context, requestID, adminUserID string, approved bool) error {
			return services.ErrForbidden
		},
	}

	w, _ := doJSON(t, newRouter(engine), http.MethodPost, "/api/v1/change-requests/req-1/review",
		gin.H{"approved": true})

	assert.Equal(t, http.StatusForbidden, w.Code)
}
