// Package accounts implements HTTP handlers for account registration, login,
// and identity lookup. Sessions are stateless JWTs; the token subject is the
// account id and membership roles are resolved per request, never embedded.
package accounts

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusface/campusface/internal/api/respond"
	"github.com/campusface/campusface/internal/auth"
	"github.com/campusface/campusface/internal/db/models"
	"github.com/campusface/campusface/internal/middleware"
)

// UserStore is the account persistence surface the handlers need.
// The concrete implementation is repositories.UserRepository.
type UserStore interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// Handlers serves the /auth endpoints
type Handlers struct {
	users     UserStore
	jwtExpiry time.Duration
}

// NewHandlers creates the account handlers
func NewHandlers(users UserStore, jwtExpiry time.Duration) *Handlers {
	return &Handlers{users: users, jwtExpiry: jwtExpiry}
}

type registerRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userView  `json:"user"`
}

type userView struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

func toUserView(user *models.User) userView {
	return userView{ID: user.ID, FullName: user.FullName, Email: user.Email}
}

// @Summary      Register an account
// @Description  Create a new account and return a session token.
// @Tags         Accounts
// @Accept       json
// @Produce      json
// @Success      201  {object}  respond.Envelope
// @Failure      400  {object}  respond.Envelope  "Validation failure"
// @Failure      409  {object}  respond.Envelope  "Email already registered"
// @Router       /api/v1/auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "full_name, email, and password (min 8 chars) are required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := h.users.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, respond.Envelope{Success: false, Message: "Email already registered"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respond.Error(c, err)
		return
	}

	user := &models.User{
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: string(hash),
	}
	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		respond.Error(c, err)
		return
	}

	h.issueSession(c, user, http.StatusCreated, "Account created")
}

// @Summary      Log in
// @Description  Exchange email and password for a session token.
// @Tags         Accounts
// @Accept       json
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      401  {object}  respond.Envelope  "Invalid credentials"
// @Router       /api/v1/auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "email and password are required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.users.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		respond.Error(c, err)
		return
	}
	// Same response for unknown email and wrong password
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, respond.Envelope{Success: false, Message: "Invalid email or password"})
		return
	}

	h.issueSession(c, user, http.StatusOK, "Logged in")
}

// @Summary      Current account
// @Description  Return the account behind the presented token.
// @Tags         Accounts
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Router       /api/v1/auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, respond.Envelope{Success: false, Message: "Not authenticated"})
		return
	}
	respond.OK(c, "OK", toUserView(user))
}

func (h *Handlers) issueSession(c *gin.Context, user *models.User, status int, message string) {
	token, err := auth.GenerateJWT(user.ID, user.Email, h.jwtExpiry)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(status, respond.Envelope{
		Success: true,
		Message: message,
		Data: sessionResponse{
			Token:     token,
			ExpiresAt: time.Now().Add(h.jwtExpiry),
			User:      toUserView(user),
		},
	})
}
