package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/types"
)

// RequestLogger writes one structured line per request.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info(c.Request.Context(), types.ActionRequestReceived, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
