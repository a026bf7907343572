// Package codes implements HTTP handlers for authorization code generation,
// validation at the gate, and administrative code management. The caller's
// identity always comes from the bearer token, never from the request body,
// so a member cannot generate or spend codes on someone else's behalf.
package codes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusface/campusface/internal/api/respond"
	"github.com/campusface/campusface/internal/middleware"
	"github.com/campusface/campusface/internal/services"
)

// Engine is the code engine surface the handlers need.
// The concrete implementation is services.AuthCodeService.
type Engine interface {
	GenerateCode(ctx context.Context, userID, orgID string) (*services.GeneratedCode, error)
	ValidateCode(ctx context.Context, value, validatorUserID string) (*services.ValidationResult, error)
	ListAllCodes(ctx context.Context) ([]*services.AuthCodeDTO, error)
	GetCodeByID(ctx context.Context, id string) (*services.AuthCodeDTO, error)
	UpdateCode(ctx context.Context, id string, valid *bool, expirationTime *time.Time) (*services.AuthCodeDTO, error)
	DeleteCode(ctx context.Context, id string) error
	InvalidateCode(ctx context.Context, id string) error
}

// Handlers serves the /codes endpoints
type Handlers struct {
	engine Engine
}

// NewHandlers creates the code handlers
func NewHandlers(engine Engine) *Handlers {
	return &Handlers{engine: engine}
}

type generateRequest struct {
	OrganizationID string `json:"organization_id" binding:"required"`
}

type validateRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

type updateRequest struct {
	Valid          *bool      `json:"valid"`
	ExpirationTime *time.Time `json:"expiration_time"`
}

// @Summary      Generate an authorization code
// @Description  Invalidate the caller's previous codes for the organization and issue a fresh 6-digit code.
// @Tags         Codes
// @Accept       json
// @Produce      json
// @Success      201  {object}  respond.Envelope  "data: {code, expiration_time}"
// @Failure      422  {object}  respond.Envelope  "Caller is not an active member"
// @Router       /api/v1/codes/generate [post]
func (h *Handlers) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "organization_id is required")
		return
	}

	code, err := h.engine.GenerateCode(c.Request.Context(), middleware.CurrentUserID(c), req.OrganizationID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Created(c, "Code generated", code)
}

// @Summary      Validate an authorization code
// @Description  Consume a code at the gate. The caller must be an active VALIDATOR or ADMIN of the code's organization. Invalid, expired, and spent codes answer 200 with success=false.
// @Tags         Codes
// @Accept       json
// @Produce      json
// @Success      200  {object}  respond.Envelope  "message per outcome; data: member details when authorized"
// @Failure      403  {object}  respond.Envelope  "Caller lacks validator standing"
// @Router       /api/v1/codes/validate [post]
func (h *Handlers) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "code must be a 6-digit value")
		return
	}

	result, err := h.engine.ValidateCode(c.Request.Context(), req.Code, middleware.CurrentUserID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}

	// Validation outcomes are values: the request succeeded even when the
	// code did not. The envelope's success flag carries the verdict.
	env := respond.Envelope{Success: result.Valid, Message: result.Message}
	if result.Member != nil {
		env.Data = result.Member
	}
	c.JSON(http.StatusOK, env)
}

// @Summary      List codes
// @Tags         Codes
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Router       /api/v1/codes [get]
func (h *Handlers) List(c *gin.Context) {
	codes, err := h.engine.ListAllCodes(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "OK", codes)
}

// @Summary      Get a code
// @Tags         Codes
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/codes/{id} [get]
func (h *Handlers) Get(c *gin.Context) {
	code, err := h.engine.GetCodeByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "OK", code)
}

// @Summary      Update a code
// @Description  Administrative override of a code's validity or expiration. Re-validating is refused when the owner already holds another valid code.
// @Tags         Codes
// @Accept       json
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/codes/{id} [put]
func (h *Handlers) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "body must carry valid and/or expiration_time")
		return
	}
	if req.Valid == nil && req.ExpirationTime == nil {
		respond.BadRequest(c, "nothing to update")
		return
	}

	code, err := h.engine.UpdateCode(c.Request.Context(), c.Param("id"), req.Valid, req.ExpirationTime)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Code updated", code)
}

// @Summary      Delete a code
// @Tags         Codes
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/codes/{id} [delete]
func (h *Handlers) Delete(c *gin.Context) {
	if err := h.engine.DeleteCode(c.Request.Context(), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Code deleted", nil)
}

// @Summary      Invalidate a code
// @Description  Mark a code unusable without consuming it.
// @Tags         Codes
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      404  {object}  respond.Envelope
// @Router       /api/v1/codes/{id}/invalidate [post]
func (h *Handlers) Invalidate(c *gin.Context) {
	if err := h.engine.InvalidateCode(c.Request.Context(), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Code invalidated", nil)
}
