package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	contextUserIDKey = "auth.user_id"
	contextRoleKey   = "auth.role"
)

// UserID extracts the authenticated user from the request context
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(contextUserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// UserRole extracts the authenticated user's role
func UserRole(c *gin.Context) (Role, bool) {
	v, ok := c.Get(contextRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(Role)
	return role, ok
}

// RequireAuth verifies the bearer token and stores the caller's identity
// on the request context.
func (s *Service) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := s.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Set(contextRoleKey, claims.Role)
		c.Next()
	}
}

// RequireCapability rejects callers whose role does not grant the
// capability. Runs after RequireAuth.
func (s *Service) RequireCapability(cap Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := UserRole(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		for _, granted := range roleCapabilities[role] {
			if granted == cap {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}
