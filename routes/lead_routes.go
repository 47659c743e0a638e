package routes

import (
	"github.com/BerniceZTT/dialer_end/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterLeadRoutes 注册线索相关路由
func RegisterLeadRoutes(router *gin.Engine, h Handlers) {
	leadGroup := router.Group("/api/leads")
	leadGroup.Use(middleware.AuthMiddleware(), middleware.OperationLoggerMiddleware(h.OperationLog))

	leadGroup.GET("", middleware.PermissionMiddleware("leads", "read"), h.Leads.ListLeads)
	leadGroup.GET("/:id", middleware.PermissionMiddleware("leads", "read"), h.Leads.GetLead)
	leadGroup.POST("", middleware.PermissionMiddleware("leads", "create"), h.Leads.CreateLead)
	leadGroup.PUT("/:id", middleware.PermissionMiddleware("leads", "update"), h.Leads.UpdateLead)
	leadGroup.DELETE("/:id", middleware.PermissionMiddleware("leads", "delete"), h.Leads.DeleteLead)

	// 阶段变更
	leadGroup.POST("/:id/stage", middleware.PermissionMiddleware("leads", "update"), h.Leads.ChangeStage)

	// 互动记录
	leadGroup.GET("/:id/interactions", middleware.PermissionMiddleware("leads", "read"), h.Leads.ListInteractions)
	leadGroup.POST("/:id/interactions", middleware.PermissionMiddleware("dialer", "work"), h.Leads.CreateInteraction)
}
