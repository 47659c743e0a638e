package routes

import (
	"github.com/BerniceZTT/dialer_end/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterDialerRoutes 注册外呼会话路由
func RegisterDialerRoutes(router *gin.Engine, h Handlers) {
	dialerGroup := router.Group("/api/dialer")
	dialerGroup.Use(middleware.AuthMiddleware(), middleware.PermissionMiddleware("dialer", "work"))

	dialerGroup.GET("/outcomes", h.Dialer.Outcomes)

	sessions := dialerGroup.Group("/sessions")
	sessions.Use(middleware.OperationLoggerMiddleware(h.OperationLog))

	sessions.POST("", h.Dialer.CreateSession)
	sessions.GET("/:id", h.Dialer.GetSession)
	sessions.DELETE("/:id", h.Dialer.CloseSession)
	sessions.GET("/:id/queue", h.Dialer.GetQueue)
	sessions.PUT("/:id/filter", h.Dialer.SetFilter)

	// 游标移动
	sessions.POST("/:id/next", h.Dialer.Next)
	sessions.POST("/:id/previous", h.Dialer.Previous)

	// 通话控制
	sessions.POST("/:id/dial", h.Dialer.Dial)
	sessions.POST("/:id/hangup", h.Dialer.HangUp)
	sessions.POST("/:id/mute", h.Dialer.Mute)
	sessions.POST("/:id/digits", h.Dialer.SendDigit)

	// 结果与邮件
	sessions.POST("/:id/outcome", h.Dialer.RecordOutcome)
	sessions.POST("/:id/email", h.Dialer.LogEmail)
}
