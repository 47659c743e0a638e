package routes

import (
	"github.com/BerniceZTT/dialer_end/controllers"
	"github.com/BerniceZTT/dialer_end/middleware"
	"github.com/BerniceZTT/dialer_end/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由依赖的控制器
type Handlers struct {
	Leads        *controllers.LeadController
	Dialer       *controllers.DialerController
	Interactions *controllers.InteractionController
	Catalog      *models.Catalog
	OperationLog middleware.OperationLogSaver
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(router *gin.Engine, h Handlers) {
	RegisterLeadRoutes(router, h)
	RegisterDialerRoutes(router, h)
	RegisterInteractionRoutes(router, h)

	router.GET("/api/catalog", middleware.AuthMiddleware(), controllers.CatalogHandler(h.Catalog))

	// 健康检查路由
	router.GET("/api/health", controllers.Health)

	// 数据库状态检查路由
	router.GET("/api/db-status", controllers.DatabaseStatus)

	// Prometheus指标
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
