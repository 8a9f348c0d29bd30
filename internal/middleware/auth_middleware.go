package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/service"
	"order-lifecycle-reconciler/internal/types"
)

const (
	ctxUserID          = "userID"
	ctxUserName        = "userName"
	ctxUserPermissions = "userPermissions"
)

// AuthMiddleware validates the bearer token and stores the caller in the
// gin context. It is a no-op when the auth service is not configured.
func AuthMiddleware(authService *service.AuthService, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authService.Enabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn(c.Request.Context(), types.ActionRequestDenied, "missing authorization header", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		user, err := authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			log.Warn(c.Request.Context(), types.ActionRequestDenied, "token rejected", "path", c.FullPath(), "error", err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ctxUserID, user.ID)
		c.Set(ctxUserName, user.Name)
		c.Set(ctxUserPermissions, user.Permissions)
		c.Next()
	}
}
