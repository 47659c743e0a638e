package controllers

import (
	"errors"
	"net/http"

	"github.com/BerniceZTT/dialer_end/service"
	"github.com/BerniceZTT/dialer_end/utils"

	"github.com/gin-gonic/gin"
)

// toApiError 将服务层错误转换为接口错误
func toApiError(err error) error {
	switch {
	case errors.Is(err, service.ErrLeadNotFound):
		return utils.CreateLeadNotFoundError()
	case errors.Is(err, service.ErrSessionNotFound):
		return utils.CreateNotFoundError("外呼会话", "SESSION_NOT_FOUND")
	case errors.Is(err, service.ErrInvalidInput):
		return utils.CreateBadRequestError(err.Error())
	case errors.Is(err, service.ErrLeaseHeld):
		return utils.CreateConflictError(err.Error(), "LEASE_HELD")
	case errors.Is(err, service.ErrInvalidState):
		return utils.CreateConflictError(err.Error(), "INVALID_STATE")
	case errors.Is(err, service.ErrNoLead):
		return utils.NewApiError(err.Error(), http.StatusNotFound, "NO_LEAD")
	case errors.Is(err, service.ErrEmailNotSent):
		return utils.NewApiError(err.Error(), http.StatusBadGateway, "EMAIL_NOT_SENT")
	case errors.Is(err, service.ErrUpdateFailed):
		return utils.CreateUpdateFailedError()
	}
	return err
}

func respondError(c *gin.Context, err error) {
	utils.HandleError(c, toApiError(err))
}

// currentUser 获取当前坐席，失败时已写出401
func currentUser(c *gin.Context) (*utils.LoginUser, bool) {
	user, err := utils.GetUser(c)
	if err != nil {
		utils.HandleError(c, utils.CreateUnauthorizedError())
		return nil, false
	}
	return user, true
}
