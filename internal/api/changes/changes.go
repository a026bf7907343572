// Package changes implements HTTP handlers for face photo change requests.
// Photos arrive as multipart uploads, are normalized and stored by the
// engine, and sit pending until an organization admin reviews them.
package changes

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"github.com/campusface/campusface/internal/api/respond"
	"github.com/campusface/campusface/internal/db/models"
	"github.com/campusface/campusface/internal/middleware"
	"github.com/campusface/campusface/internal/services"
)

// Engine is the change-request engine surface the handlers need.
// The concrete implementation is services.ChangeRequestService.
type Engine interface {
	Create(ctx context.Context, userID, orgID string, imageData []byte) (*models.ChangeRequest, error)
	Review(ctx context.Context, requestID, adminUserID string, approved bool) error
	Update(ctx context.Context, requestID string, imageData []byte) (*models.ChangeRequest, error)
	Delete(ctx context.Context, requestID string) error
	ListPending(ctx context.Context, orgID string) ([]*services.ChangeRequestDTO, error)
	ListUserRequests(ctx context.Context, userID string) ([]*services.ChangeRequestDTO, error)
	GetByID(ctx context.Context, requestID string) (*services.ChangeRequestDTO, error)
}

// Handlers serves the /change-requests endpoints
type Handlers struct {
	engine         Engine
	maxUploadBytes int64
}

// NewHandlers creates the change-request handlers. maxUploadBytes caps the
// size of an uploaded photo.
func NewHandlers(engine Engine, maxUploadBytes int64) *Handlers {
	return &Handlers{engine: engine, maxUploadBytes: maxUploadBytes}
}

type reviewRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// readImage pulls the "image" form file, enforcing the upload cap. Raw
// storage keys never appear in responses, so the created record is
// re-read through the engine's DTO projection by the callers.
func (h *Handlers) readImage(c *gin.Context) ([]byte, bool) {
	header, err := c.FormFile("image")
	if err != nil {
		respond.BadRequest(c, "image file is required")
		return nil, false
	}
	if header.Size > h.maxUploadBytes {
		respond.BadRequest(c, fmt.Sprintf("image exceeds the %d byte limit", h.maxUploadBytes))
		return nil, false
	}

	file, err := header.Open()
	if err != nil {
		respond.Error(c, fmt.Errorf("open upload: %w", err))
		return nil, false
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	// LimitReader guards against a lying Content-Length in the part header.
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		respond.Error(c, fmt.Errorf("read upload: %w", err))
		return nil, false
	}
	if int64(len(data)) > h.maxUploadBytes {
		respond.BadRequest(c, fmt.Sprintf("image exceeds the %d byte limit", h.maxUploadBytes))
		return nil, false
	}
	return data, true
}

// @Summary      Request a face photo change
// @Description  Upload a replacement photo for the caller's membership in an organization. The request stays pending until an admin reviews it.
// @Tags         Change requests
// @Accept       multipart/form-data
// @Produce      json
// @Param        organization_id  formData  string  true  "Organization ID"
// @Param        image            formData  file    true  "Replacement face photo"
// @Success      201  {object}  respond.Envelope
// @Failure      409  {object}  respond.Envelope  "A pending request already exists"
// @Failure      422  {object}  respond.Envelope  "Caller is not an active member"
// @Router       /api/v1/change-requests [post]
func (h *Handlers) Create(c *gin.Context) {
	orgID := c.PostForm("organization_id")
	if orgID == "" {
		respond.BadRequest(c, "organization_id is required")
		return
	}
	data, ok := h.readImage(c)
	if !ok {
		return
	}

	created, err := h.engine.Create(c.Request.Context(), middleware.CurrentUserID(c), orgID, data)
	if err != nil {
		respond.Error(c, err)
		return
	}

	dto, err := h.engine.GetByID(c.Request.Context(), created.ID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Created(c, "Change request filed", dto)
}

// @Summary      List pending change requests for an organization
// @Tags         Change requests
// @Produce      json
// @Param        organizationId  query  string  true  "Organization ID"
// @Success      200  {object}  respond.Envelope
// @Router       /api/v1/change-requests/pending [get]
func (h *Handlers) ListPending(c *gin.Context) {
	orgID := c.Query("organizationId")
	if orgID == "" {
		respond.BadRequest(c, "organizationId query parameter is required")
		return
	}

	requests, err := h.engine.ListPending(c.Request.Context(), orgID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "OK", requests)
}

// @Summary      List the caller's change requests
// @Tags         Change requests
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Router       /api/v1/change-requests/mine [get]
func (h *Handlers) ListMine(c *gin.Context) {
	requests, err := h.engine.ListUserRequests(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "OK", requests)
}

// @Summary      Get a change request
// @Tags         Change requests
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/change-requests/{id} [get]
func (h *Handlers) Get(c *gin.Context) {
	dto, err := h.engine.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "OK", dto)
}

// @Summary      Replace the photo on a pending change request
// @Description  Swap the proposed photo. The previously uploaded photo is discarded. Only pending requests can be edited.
// @Tags         Change requests
// @Accept       multipart/form-data
// @Produce      json
// @Param        image  formData  file  true  "Replacement face photo"
// @Success      200  {object}  respond.Envelope
// @Failure      409  {object}  respond.Envelope  "Request already processed"
// @Router       /api/v1/change-requests/{id} [put]
func (h *Handlers) Update(c *gin.Context) {
	data, ok := h.readImage(c)
	if !ok {
		return
	}

	updated, err := h.engine.Update(c.Request.Context(), c.Param("id"), data)
	if err != nil {
		respond.Error(c, err)
		return
	}

	dto, err := h.engine.GetByID(c.Request.Context(), updated.ID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Change request updated", dto)
}

// @Summary      Delete a change request
// @Description  Remove a request. A pending request's uploaded photo is discarded; photos already promoted to a member stay.
// @Tags         Change requests
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/change-requests/{id} [delete]
func (h *Handlers) Delete(c *gin.Context) {
	if err := h.engine.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Change request deleted", nil)
}

// @Summary      Review a change request
// @Description  Approve or deny a pending request. Approval promotes the photo to the membership; denial discards it. The caller must be an active admin of the organization.
// @Tags         Change requests
// @Accept       json
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      403  {object}  respond.Envelope  "Caller is not an admin"
// @Failure      409  {object}  respond.Envelope  "Request already processed"
// @Router       /api/v1/change-requests/{id}/review [post]
func (h *Handlers) Review(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Approved == nil {
		respond.BadRequest(c, "approved is required")
		return
	}

	err := h.engine.Review(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c), *req.Approved)
	if err != nil {
		respond.Error(c, err)
		return
	}

	message := "Change request approved"
	if !*req.Approved {
		message = "Change request denied"
	}
	respond.OK(c, message, nil)
}
