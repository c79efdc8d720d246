// Package middleware provides Gin HTTP middleware for identity resolution,
// role checks, rate limiting, security headers, metrics and audit logging.
//
// Middleware ordering is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → CORS → Identity → Audit → (RateLimit → Auth → Role) → Handler
//
// The audit middleware sits before the per-group auth checks so that denied
// mutations are still recorded as FAILURE.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timesheet-app/timesheet/internal/auth"
)

// IdentityKey is the gin.Context key holding the caller's *auth.Identity.
const IdentityKey = "identity"

// IdentityMiddleware resolves the bearer token, if any, and stores the caller
// under IdentityKey. It never rejects a request.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := auth.ExtractIdentity(c.GetHeader("Authorization")); id != nil {
			c.Set(IdentityKey, id)
		}
		c.Next()
	}
}

// IdentityFromContext returns the caller stored by IdentityMiddleware, or nil.
func IdentityFromContext(c *gin.Context) *auth.Identity {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*auth.Identity)
	return id
}

// resolveIdentity prefers the identity already on the context and falls back
// to reading the Authorization header directly.
func resolveIdentity(c *gin.Context) *auth.Identity {
	if id := IdentityFromContext(c); id != nil {
		return id
	}
	return auth.ExtractIdentity(c.GetHeader("Authorization"))
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := resolveIdentity(c)
		if id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Authentication required",
			})
			return
		}
		c.Set(IdentityKey, id)
		c.Next()
	}
}
