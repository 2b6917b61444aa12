package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"contracts-backend/internal/shared/auth"
	"contracts-backend/internal/shared/server/respond"
)

const (
	userIDKey    = "userId"
	userEmailKey = "userEmail"
	userNameKey  = "userName"
	userRoleKey  = "userRole"
	orgIDKey     = "organizationId"
)

// RoleAdmin is the role required by queue-control and admin endpoints.
const RoleAdmin = "admin"

// Auth validates session JWTs and stores identity in context.
// OAuth callback and Stripe webhook paths carry their own verification.
func Auth(env string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/v1/auth/google/") || path == "/api/v1/billing/webhook" {
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if token == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		claims, err := auth.VerifyJWT(token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		c.Set(userIDKey, claims.Sub)
		if claims.Email != "" {
			c.Set(userEmailKey, claims.Email)
		}
		if claims.Name != "" {
			c.Set(userNameKey, claims.Name)
		}
		if claims.Role != "" {
			c.Set(userRoleKey, claims.Role)
		}
		if claims.OrgID != "" {
			c.Set(orgIDKey, claims.OrgID)
		}
		c.Next()
	}
}

// RoleResolver reports the current role stored on a user row.
// The JWT role claim can go stale between logins, so admin checks
// re-resolve against the store.
type RoleResolver interface {
	RoleByID(ctx context.Context, userID string) (string, error)
}

// RequireAdmin rejects callers whose user row does not carry the admin role.
func RequireAdmin(resolver RoleResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserIDFromContext(c)
		if userID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		role := RoleFromContext(c)
		if resolver != nil {
			resolved, err := resolver.RoleByID(c.Request.Context(), userID)
			if err != nil {
				respond.Error(c, http.StatusForbidden, "forbidden", "admin access required", nil)
				return
			}
			role = resolved
		}

		if role != RoleAdmin {
			respond.Error(c, http.StatusForbidden, "forbidden", "admin access required", nil)
			return
		}
		c.Next()
	}
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	return stringFromContext(c, userIDKey)
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	return stringFromContext(c, userEmailKey)
}

// RoleFromContext fetches the role claim set by the auth middleware.
func RoleFromContext(c *gin.Context) string {
	return stringFromContext(c, userRoleKey)
}

// OrgIDFromContext fetches the organization scope set by the auth middleware.
func OrgIDFromContext(c *gin.Context) string {
	return stringFromContext(c, orgIDKey)
}

func stringFromContext(c *gin.Context, key string) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(key)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
