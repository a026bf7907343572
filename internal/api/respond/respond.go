// Package respond implements the API's response envelope and the mapping
// from engine sentinel errors to HTTP status codes. Every endpoint answers
// with the same shape so the mobile app and gate hardware parse one format:
//
//	{"success": true, "message": "...", "data": {...}}
//
// Raw engine error text never reaches the client for 5xx responses; the
// wrapped detail lands in the server log instead.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusface/campusface/internal/services"
)

// Envelope is the uniform response body
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK writes a 200 envelope
func OK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Created writes a 201 envelope
func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// BadRequest writes a 400 envelope for malformed input detected at the
// handler, before any engine is involved
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{Success: false, Message: message})
}

// Error maps an engine error to its HTTP status and writes the envelope.
//
// Not-found is 404; state conflicts (already processed, duplicate pending,
// already a member) are 409; bad input is 400; authorization failures are
// 403; membership preconditions are 422; image-host failures are 502.
// Anything unrecognized is a 500 with a generic message.
func Error(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		write(c, http.StatusNotFound, err)
	case errors.Is(err, services.ErrAlreadyProcessed),
		errors.Is(err, services.ErrDuplicatePending),
		errors.Is(err, services.ErrAlreadyMember):
		write(c, http.StatusConflict, err)
	case errors.Is(err, services.ErrInvalidInput):
		write(c, http.StatusBadRequest, err)
	case errors.Is(err, services.ErrForbidden):
		write(c, http.StatusForbidden, err)
	case errors.Is(err, services.ErrNotMember),
		errors.Is(err, services.ErrMemberInactive):
		write(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, services.ErrUpstream):
		slog.Error("upstream dependency failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, Envelope{Success: false, Message: "Upstream storage unavailable"})
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, Envelope{Success: false, Message: "Internal server error"})
	}
}

func write(c *gin.Context, status int, err error) {
	c.JSON(status, Envelope{Success: false, Message: err.Error()})
}
