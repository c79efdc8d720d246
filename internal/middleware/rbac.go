package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timesheet-app/timesheet/internal/auth"
)

// RequireRole allows the request through only when the caller's role is one
// of roles. It must run after RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := IdentityFromContext(c)
		if id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Authentication required",
			})
			return
		}
		if !auth.HasRole(id.Role, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "Insufficient permissions",
			})
			return
		}
		c.Next()
	}
}
