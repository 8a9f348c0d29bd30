package controller

import (
	"github.com/gin-gonic/gin"

	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/middleware"
	"order-lifecycle-reconciler/internal/service"
)

// NewRouter mounts every route. The manual trigger is the only mutating
// endpoint and the only one behind operator auth.
func NewRouter(ctl *LifecycleController, authService *service.AuthService, allowedOrigins []string, log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.CORS(allowedOrigins))

	r.GET("/health", ctl.Health)
	r.GET("/status", ctl.Status)
	r.GET("/statistics", ctl.GetStatistics)
	r.GET("/test-cors", ctl.TestCORS)
	r.GET("/orders/:collection/:ownerId/:orderId/assessment", ctl.AssessOrder)

	operator := r.Group("/")
	if authService.Enabled() {
		operator.Use(middleware.AuthMiddleware(authService, log), middleware.AdminOnly())
	}
	operator.POST("/trigger-auto-confirm", ctl.TriggerAutoConfirm)

	return r
}
