package controllers

import (
	"net/http"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/repository"
	"github.com/BerniceZTT/dialer_end/utils"

	"github.com/gin-gonic/gin"
)

// Health 健康检查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DatabaseStatus 数据库状态检查
func DatabaseStatus(c *gin.Context) {
	status, err := repository.GetDatabaseStatus()
	if err != nil {
		utils.ErrorResponse(c, "获取数据库状态失败: "+err.Error(), http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, status)
}

// CatalogHandler 返回优先级、阶段、类别与结果标签词表
func CatalogHandler(catalog *models.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.SuccessResponse(c, gin.H{
			"tiers":      append(append([]string{}, models.BuiltinTiers...), catalog.Tiers...),
			"stages":     catalog.AllStages(),
			"categories": catalog.AllCategories(),
			"outcomes":   models.Outcomes,
		}, "")
	}
}
