package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Abhishekhack2909/StreamVerse/internal/identity"
	"github.com/Abhishekhack2909/StreamVerse/pkg/response"
)

const (
	ctxKeyUserID      = "user_id"
	ctxKeyDisplayName = "display_name"
)

// AuthMiddleware guards HTTP routes with the same credential resolver the
// websocket channel uses.
type AuthMiddleware struct {
	resolver identity.Resolver
}

// NewAuthMiddleware creates the middleware.
func NewAuthMiddleware(resolver identity.Resolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// RequireAuth rejects requests without a valid bearer token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}

		caller, err := m.resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set(ctxKeyUserID, caller.UserID)
		c.Set(ctxKeyDisplayName, caller.DisplayName)
		c.Next()
	}
}

// GetUserID returns the authenticated user id, or empty.
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxKeyUserID)
}

// GetDisplayName returns the authenticated display name, or empty.
func GetDisplayName(c *gin.Context) string {
	return c.GetString(ctxKeyDisplayName)
}
