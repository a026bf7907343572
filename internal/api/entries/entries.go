// Package entries implements HTTP handlers for organization entry requests:
// a user asks to join a hub under a role, and an administrator approves or
// rejects the request. The requester is always the authenticated caller.
package entries

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusface/campusface/internal/api/respond"
	"github.com/campusface/campusface/internal/db/models"
	"github.com/campusface/campusface/internal/middleware"
	"github.com/campusface/campusface/internal/services"
)

// Engine is the entry-request engine surface the handlers need.
// The concrete implementation is services.EntryRequestService.
type Engine interface {
	Create(ctx context.Context, userID, hubCode string, role models.Role) (*services.EntryRequestDTO, error)
	Approve(ctx context.Context, requestID string) error
	Reject(ctx context.Context, requestID string) error
	Update(ctx context.Context, requestID string, role *models.Role) (*services.EntryRequestDTO, error)
	Delete(ctx context.Context, requestID string) error
	ListPending(ctx context.Context, hubCode string) ([]*services.EntryRequestDTO, error)
	ListUserRequests(ctx context.Context, userID string) ([]*services.EntryRequestDTO, error)
	GetByID(ctx context.Context, requestID string) (*services.EntryRequestDTO, error)
}

// Handlers serves the /entry-requests endpoints
type Handlers struct {
	engine Engine
}

// NewHandlers creates the entry-request handlers
func NewHandlers(engine Engine) *Handlers {
	return &Handlers{engine: engine}
}

type createRequest struct {
	HubCode string `json:"hub_code" binding:"required"`
	Role    string `json:"role" binding:"required"`
}

type updateRequest struct {
	Role *string `json:"role"`
}

// normalizeRole maps user input onto a stored role value. Unknown values
// pass through so the engine reports them uniformly.
func normalizeRole(raw string) models.Role {
	return models.Role(strings.ToUpper(strings.TrimSpace(raw)))
}

// @Summary      Request entry into a hub
// @Description  File a pending entry request for the calling user, addressed by the hub's public code.
// @Tags         Entry requests
// @Accept       json
// @Produce      json
// @Success      201  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope  "Unknown hub code"
// @Failure      409  {object}  respond.Envelope  "Already a member or already pending"
// @Router       /api/v1/entry-requests [post]
func (h *Handlers) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "hub_code and role are required")
		return
	}

	dto, err := h.engine.Create(c.Request.Context(), middleware.CurrentUserID(c), req.HubCode, normalizeRole(req.Role))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Created(c, "Entry request filed", dto)
}

// @Summary      List pending entry requests for a hub
// @Tags         Entry requests
// @Produce      json
// @Param        hubCode  query  string  true  "Hub public code"
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/entry-requests/pending [get]
func (h *Handlers) ListPending(c *gin.Context) {
	hubCode := c.Query("hubCode")
	if hubCode == "" {
		respond.BadRequest(c, "hubCode query parameter is required")
		return
	}

	requests, err := h.engine.ListPending(c.Request.Context(), hubCode)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "OK", requests)
}

// @Summary      List the caller's entry requests
// @Tags         Entry requests
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Router       /api/v1/entry-requests/mine [get]
func (h *Handlers) ListMine(c *gin.Context) {
	requests, err := h.engine.ListUserRequests(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "OK", requests)
}

// @Summary      Get an entry request
// @Tags         Entry requests
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/entry-requests/{id} [get]
func (h *Handlers) Get(c *gin.Context) {
	dto, err := h.engine.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "OK", dto)
}

// @Summary      Update a pending entry request
// @Description  Change the requested role. Only pending requests can be edited.
// @Tags         Entry requests
// @Accept       json
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      409  {object}  respond.Envelope  "Request already processed"
// @Router       /api/v1/entry-requests/{id} [put]
func (h *Handlers) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "body must carry a role")
		return
	}

	var role *models.Role
	if req.Role != nil {
		r := normalizeRole(*req.Role)
		role = &r
	}

	dto, err := h.engine.Update(c.Request.Context(), c.Param("id"), role)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Entry request updated", dto)
}

// @Summary      Delete an entry request
// @Description  Remove a request regardless of its status. Approved memberships are not revoked.
// @Tags         Entry requests
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/entry-requests/{id} [delete]
func (h *Handlers) Delete(c *gin.Context) {
	if err := h.engine.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Entry request deleted", nil)
}

// @Summary      Approve an entry request
// @Description  Admit the requester as an active member under the requested role and mark the request approved.
// @Tags         Entry requests
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      409  {object}  respond.Envelope  "Already processed or membership conflict"
// @Router       /api/v1/entry-requests/{id}/approve [post]
func (h *Handlers) Approve(c *gin.Context) {
	if err := h.engine.Approve(c.Request.Context(), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Entry request approved", nil)
}

// @Summary      Reject an entry request
// @Tags         Entry requests
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      409  {object}  respond.Envelope  "Already processed"
// @Router       /api/v1/entry-requests/{id}/reject [post]
func (h *Handlers) Reject(c *gin.Context) {
	if err := h.engine.Reject(c.Request.Context(), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Entry request rejected", nil)
}
