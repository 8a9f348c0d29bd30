package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"order-lifecycle-reconciler/internal/service"
)

// AdminOnly requires the admin permission set by AuthMiddleware. Mount it
// only when authentication is enabled.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(c.GetStringSlice(ctxUserPermissions), service.PermissionAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
			return
		}
		c.Next()
	}
}
