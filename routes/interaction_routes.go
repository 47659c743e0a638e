package routes

import (
	"github.com/BerniceZTT/dialer_end/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterInteractionRoutes 注册互动统计路由
func RegisterInteractionRoutes(router *gin.Engine, h Handlers) {
	group := router.Group("/api/interactions")
	group.Use(middleware.AuthMiddleware(), middleware.PermissionMiddleware("dialer", "read"))

	group.GET("/summary", h.Interactions.GetOutcomeSummary)
}
