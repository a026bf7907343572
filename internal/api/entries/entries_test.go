package entries

import (
	"bytes"
	"context"
	"encoding/json"
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

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

// ---------------------------------------------------------------------------
// Mock engine
// ---------------------------------------------------------------------------

type mockEngine struct {
	createFn      func(ctx context.Context, userID, hubCode string, role models.Role) (*services.EntryRequestDTO, error)
	approveFn     func(ctx context.Context, requestID string) error
	rejectFn      func(ctx context.Context, requestID string) error
	updateFn      func(ctx context.Context, requestID string, role *models.Role) (*services.EntryRequestDTO, error)
	deleteFn      func(ctx context.Context, requestID string) error
	listPendingFn func(ctx context.Context, hubCode string) ([]*services.EntryRequestDTO, error)
	listMineFn    func(ctx context.Context, userID string) ([]*services.EntryRequestDTO, error)
	getFn         func(ctx context.Context, requestID string) (*services.EntryRequestDTO, error)
}

func (m *mockEngine) Create(ctx context.Context, userID, hubCode string, role models.Role) (*services.EntryRequestDTO, error) {
	return m.createFn(ctx, userID, hubCode, role)
}

func (m *mockEngine) Approve(ctx context.Context, requestID string) error {
	return m.approveFn(ctx, requestID)
}

func (m *mockEngine) Reject(ctx context.Context, requestID string) error {
	return m.rejectFn(ctx, requestID)
}

func (m *mockEngine) Update(ctx context.Context, requestID string, role *models.Role) (*services.EntryRequestDTO, error) {
	return m.updateFn(ctx, requestID, role)
}

func (m *mockEngine) Delete(ctx context.Context, requestID string) error {
	return m.deleteFn(ctx, requestID)
}

func (m *mockEngine) ListPending(ctx context.Context, hubCode string) ([]*services.EntryRequestDTO, error) {
	return m.listPendingFn(ctx, hubCode)
}

func (m *mockEngine) ListUserRequests(ctx context.Context, userID string) ([]*services.EntryRequestDTO, error) {
	return m.listMineFn(ctx, userID)
}

func (m *mockEngine) GetByID(ctx context.Context, requestID string) (*services.EntryRequestDTO, error) {
	return m.getFn(ctx, requestID)
}

func newRouter(engine Engine) *gin.Engine {
	h := NewHandlers(engine)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "user-1")
	})
	g := r.Group("/api/v1/entry-requests")
	g.POST("", h.Create)
	g.GET("/pending", h.ListPending)
	g.GET("/mine", h.ListMine)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
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

func TestCreate_FilesRequestForCaller(t *testing.T) {
	engine := &mockEngine{
		createFn: func(ctx context.Context, userID, hubCode string, role models.Role) (*services.EntryRequestDTO, error) {
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, "ENG-2025", hubCode)
			assert.Equal(t, models.RoleValidator, role)
			return &services.EntryRequestDTO{ID: "req-1", HubCode: hubCode, Role: role, Status: models.RequestPending}, nil
		},
	}

	w, env := do(t, newRouter(engine), http.MethodPost, "/api/v1/entry-requests",
		gin.H{"hub_code": "ENG-2025", "role": "validator"})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	var dto services.EntryRequestDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "req-1", dto.ID)
}

func TestCreate_MissingFields(t *testing.T) {
	engine := &mockEngine{
		createFn: func(ctx context.Context, userID, hubCode string, role models.Role) (*services.EntryRequestDTO, error) {
			t.Fatal("engine should not be called")
			return nil, nil
		},
	}
	r := newRouter(engine)

	for _, body := range []gin.H{{}, {"hub_code": "ENG-2025"}, {"role": "MEMBER"}} {
		w, _ := do(t, r, http.MethodPost, "/api/v1/entry-requests", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestCreate_ConflictStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown hub", services.ErrNotFound, http.StatusNotFound},
		{"already member", services.ErrAlreadyMember, http.StatusConflict},
		{"duplicate pending", services.ErrDuplicatePending, http.StatusConflict},
		{"unknown role", services.ErrInvalidInput, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{
				createFn: func(ctx context.Context, userID, hubCode string, role models.Role) (*services.EntryRequestDTO, error) {
					return nil, tt.err
				},
			}
			w, env := do(t, newRouter(engine), http.MethodPost, "/api/v1/entry-requests",
				gin.H{"hub_code": "ENG-2025", "role": "MEMBER"})
			assert.Equal(t, tt.want, w.Code)
			assert.False(t, env.Success)
		})
	}
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

func TestListPending_RequiresHubCode(t *testing.T) {
	engine := &mockEngine{
		listPendingFn: func(ctx context.Context, hubCode string) ([]*services.EntryRequestDTO, error) {
			t.Fatal("engine should not be called")
			return nil, nil
		},
	}

	w, _ := do(t, newRouter(engine), http.MethodGet, "/api/v1/entry-requests/pending", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPending_ForwardsHubCode(t *testing.T) {
	engine := &mockEngine{
		listPendingFn: func(ctx context.Context, hubCode string) ([]*services.EntryRequestDTO, error) {
			assert.Equal(t, "ENG-2025", hubCode)
			return []*services.EntryRequestDTO{{ID: "req-1"}}, nil
		},
	}

	w, env := do(t, newRouter(engine), http.MethodGet, "/api/v1/entry-requests/pending?hubCode=ENG-2025", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var list []*services.EntryRequestDTO
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestListMine_UsesCaller(t *testing.T) {
	engine := &mockEngine{
		listMineFn: func(ctx context.Context, userID string) ([]*services.EntryRequestDTO, error) {
			assert.Equal(t, "user-1", userID)
			return []*services.EntryRequestDTO{}, nil
		},
	}

	w, env := do(t, newRouter(engine), http.MethodGet, "/api/v1/entry-requests/mine", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
}

func TestGet_NotFound(t *testing.T) {
	engine := &mockEngine{
		getFn: func(ctx context.Context, requestID string) (*services.EntryRequestDTO, error) {
			return nil, services.ErrNotFound
		},
	}

	w, _ := do(t, newRouter(engine), http.MethodGet, "/api/v1/entry-requests/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---------------------------------------------------------------------------
// Update / Delete
// ---------------------------------------------------------------------------

func TestUpdate_NormalizesRole(t *testing.T) {
	engine := &mockEngine{
		updateFn: func(ctx context.Context, requestID string, role *models.Role) (*services.EntryRequestDTO, error) {
			assert.Equal(t, "req-1", requestID)
			require.NotNil(t, role)
			assert.Equal(t, models.RoleAdmin, *role)
			return &services.EntryRequestDTO{ID: requestID, Role: *role}, nil
		},
	}

	w, _ := do(t, newRouter(engine), http.MethodPut, "/api/v1/entry-requests/req-1",
		gin.H{"role": " admin "})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdate_AlreadyProcessed(t *testing.T) {
	engine := &mockEngine{
		updateFn: func(ctx context.Context, requestID string, role *models.Role) (*services.EntryRequestDTO, error) {
			return nil, services.ErrAlreadyProcessed
		},
	}

	w, _ := do(t, newRouter(engine), http.MethodPut, "/api/v1/entry-requests/req-1",
		gin.H{"role": "MEMBER"})

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

	w, _ := do(t, newRouter(engine), http.MethodDelete, "/api/v1/entry-requests/req-1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", deleted)
}

// ---------------------------------------------------------------------------
// Approve / Reject
// ---------------------------------------------------------------------------

func TestApprove_Succeeds(t *testing.T) {
	var approved string
	engine := &mockEngine{
		approveFn: func(ctx context.Context, requestID string) error {
			approved = requestID
			return nil
		},
	}

	w, env := do(t, newRouter(engine), http.MethodPost, "/api/v1/entry-requests/req-1/approve", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "req-1", approved)
}

func TestApprove_MembershipConflict(t *testing.T) {
	engine := &mockEngine{
		approveFn: func(ctx context.Context, requestID string) error {
			return services.ErrAlreadyMember
		},
	}

	w, _ := do(t, newRouter(engine), http.MethodPost, "/api/v1/entry-requests/req-1/approve", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReject_AlreadyProcessed(t *testing.T) {
	engine := &mockEngine{
		rejectFn: func(ctx context.Context, requestID string) error {
			return services.ErrAlreadyProcessed
		},
	}

	w, _ := do(t, newRouter(engine), http.MethodPost, "/api/v1/entry-requests/req-1/reject", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}
