// auth.go implements JWT bearer authentication for the API. Tokens are issued
// by the login handler and carry only identity (user id, email); membership
// roles are resolved at request time by the engines, so a role change takes
// effect on the member's next request without reissuing their token.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusface/campusface/internal/auth"
	"github.com/campusface/campusface/internal/db/models"
)

const (
	// UserIDKey is the gin.Context key holding the authenticated user's id
	UserIDKey = "user_id"

	// UserKey is the gin.Context key holding the authenticated *models.User
	UserKey = "user"
)

// UserLoader resolves a token subject to an account record. The concrete
// implementation is repositories.UserRepository.
type UserLoader interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// AuthMiddleware validates the Authorization bearer token and loads the
// account it names. Requests with a missing, malformed, or expired token are
// rejected with 401, as are tokens whose account has been deleted since issue.
func AuthMiddleware(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must use the Bearer scheme",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		user, err := users.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to resolve account",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Account no longer exists",
			})
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(UserKey, user)
		c.Next()
	}
}

// CurrentUserID returns the authenticated user's id set by AuthMiddleware
func CurrentUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// CurrentUser returns the authenticated account set by AuthMiddleware,
// or nil on unauthenticated routes
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(UserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
